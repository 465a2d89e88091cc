package square

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// CardParams vaults a Web Payments nonce as a card on file.
type CardParams struct {
	CustomerID     string
	Nonce          string
	CardholderName string
	PostalCode     string
}

// VaultedCard is the subset of the stored card the checkout needs.
type VaultedCard struct {
	ID    string
	Last4 string
	Brand string
}

func (p CardParams) request(idempotencyKey string) *sq.CreateCardRequest {
	card := &sq.Card{
		CustomerID:     optional(strings.TrimSpace(p.CustomerID)),
		CardholderName: optional(strings.TrimSpace(p.CardholderName)),
	}
	if postal := strings.TrimSpace(p.PostalCode); postal != "" {
		card.BillingAddress = &sq.Address{PostalCode: &postal}
	}
	return &sq.CreateCardRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       strings.TrimSpace(p.Nonce),
		Card:           card,
	}
}

func (c *Client) VaultCard(ctx context.Context, params CardParams) (VaultedCard, error) {
	resp, err := c.sdk.Cards.Create(ctx, params.request(c.newIdempotencyKey("card")))
	if err != nil {
		return VaultedCard{}, c.fail(ctx, "create card", err)
	}

	card := resp.GetCard()
	out := VaultedCard{
		ID:    derefString(card.GetID()),
		Last4: derefString(card.GetLast4()),
	}
	if brand := card.GetCardBrand(); brand != nil {
		out.Brand = strings.ToLower(string(*brand))
	}
	c.trace(ctx, "create card", map[string]any{"card_id": out.ID, "last4": out.Last4})
	return out, nil
}
