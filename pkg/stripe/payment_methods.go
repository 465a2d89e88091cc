package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// CardParams holds the raw card fields collected from the shopper.
type CardParams struct {
	Number   string
	ExpMonth int64
	ExpYear  int64
	CVC      string
	Name     string
	Email    string
	Postal   string
}

// CardPaymentMethod is the tokenized card returned by Stripe.
type CardPaymentMethod struct {
	ID    string
	Last4 string
	Brand string
}

// PaymentMethodCreator is the single Stripe call the checkout needs; swapped in tests.
type PaymentMethodCreator func(ctx context.Context, params *stripe.PaymentMethodCreateParams) (*stripe.PaymentMethod, error)

// CreateCardPaymentMethod exchanges raw card data for a pm_ token.
func (c *Client) CreateCardPaymentMethod(ctx context.Context, card CardParams) (*CardPaymentMethod, error) {
	return createCardPaymentMethod(ctx, c.api.V1PaymentMethods.Create, card)
}

func createCardPaymentMethod(ctx context.Context, create PaymentMethodCreator, card CardParams) (*CardPaymentMethod, error) {
	params := &stripe.PaymentMethodCreateParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCreateCardParams{
			Number:   stripe.String(strings.ReplaceAll(card.Number, " ", "")),
			ExpMonth: stripe.Int64(card.ExpMonth),
			ExpYear:  stripe.Int64(card.ExpYear),
			CVC:      stripe.String(card.CVC),
		},
		BillingDetails: &stripe.PaymentMethodCreateBillingDetailsParams{},
	}
	if name := strings.TrimSpace(card.Name); name != "" {
		params.BillingDetails.Name = stripe.String(name)
	}
	if email := strings.TrimSpace(card.Email); email != "" {
		params.BillingDetails.Email = stripe.String(email)
	}
	if postal := strings.TrimSpace(card.Postal); postal != "" {
		params.BillingDetails.Address = &stripe.AddressParams{PostalCode: stripe.String(postal)}
	}
	pm, err := create(ctx, params)
	if err != nil {
		return nil, MapError(err)
	}

	out := &CardPaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Last4 = pm.Card.Last4
		out.Brand = string(pm.Card.Brand)
	}
	return out, nil
}

// MapError converts Stripe failures into typed errors. Card errors keep the
// message Stripe wrote for the cardholder.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe request failed")
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeCard:
		msg := strings.TrimSpace(stripeErr.Msg)
		if msg == "" {
			msg = "card could not be processed"
		}
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg)
	case stripe.ErrorTypeInvalidRequest:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, stripeErr.Msg)
	}
	if stripeErr.HTTPStatusCode == 401 {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe rejected the api key")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe request failed")
}
