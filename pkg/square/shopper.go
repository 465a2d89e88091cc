package square

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// ShopperParams identifies the customer record a card is vaulted under.
// The email doubles as the reference id so repeat visits find the same record.
type ShopperParams struct {
	Email    string
	FullName string
}

func (p ShopperParams) email() string {
	return strings.ToLower(strings.TrimSpace(p.Email))
}

func (p ShopperParams) names() (given, family string) {
	parts := strings.Fields(p.FullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func (p ShopperParams) searchRequest() *sq.SearchCustomersRequest {
	email := p.email()
	if email == "" {
		return nil
	}
	limit := int64(1)
	return &sq.SearchCustomersRequest{
		Query: &sq.CustomerQuery{Filter: &sq.CustomerFilter{
			ReferenceID:  &sq.CustomerTextFilter{Exact: optional(email)},
			EmailAddress: &sq.CustomerTextFilter{Exact: optional(email)},
		}},
		Limit: &limit,
	}
}

func (p ShopperParams) createRequest(idempotencyKey string) *sq.CreateCustomerRequest {
	given, family := p.names()
	email := p.email()
	return &sq.CreateCustomerRequest{
		IdempotencyKey: optional(idempotencyKey),
		EmailAddress:   optional(email),
		ReferenceID:    optional(email),
		GivenName:      optional(given),
		FamilyName:     optional(family),
	}
}

// EnsureShopper returns the customer registered for the shopper's email,
// creating it on first use. Without an email a fresh customer is always created.
func (c *Client) EnsureShopper(ctx context.Context, params ShopperParams) (string, error) {
	if search := params.searchRequest(); search != nil {
		resp, err := c.sdk.Customers.Search(ctx, search)
		if err != nil {
			return "", c.fail(ctx, "search customer", err)
		}
		if found := resp.GetCustomers(); len(found) > 0 && found[0].GetID() != nil {
			id := *found[0].GetID()
			c.trace(ctx, "search customer", map[string]any{"customer_id": id})
			return id, nil
		}
	}

	resp, err := c.sdk.Customers.Create(ctx, params.createRequest(c.newIdempotencyKey("customer")))
	if err != nil {
		return "", c.fail(ctx, "create customer", err)
	}
	id := derefString(resp.GetCustomer().GetID())
	c.trace(ctx, "create customer", map[string]any{"customer_id": id})
	return id, nil
}
