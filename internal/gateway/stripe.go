package gateway

import (
	"context"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/stripe"
)

type stripeCards interface {
	CreateCardPaymentMethod(ctx context.Context, card stripe.CardParams) (*stripe.CardPaymentMethod, error)
}

// Stripe tokenizes raw card fields into a pm_ payment method.
type Stripe struct {
	cards  stripeCards
	logger *logger.Logger
}

func NewStripe(cards stripeCards, logg *logger.Logger) *Stripe {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Stripe{cards: cards, logger: logg}
}

func (s *Stripe) Provider() string {
	return "stripe"
}

func (s *Stripe) Tokenize(ctx context.Context, card checkout.CardInput) (Token, error) {
	if card.Number == "" {
		return Token{}, pkgerrors.New(pkgerrors.CodeValidation, "card number is required")
	}
	pm, err := s.cards.CreateCardPaymentMethod(ctx, stripe.CardParams{
		Number:   card.Number,
		ExpMonth: int64(card.ExpMonth),
		ExpYear:  int64(card.ExpYear),
		CVC:      card.CVC,
		Name:     card.Name,
		Email:    card.Email,
		Postal:   card.PostalCode,
	})
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "provider", s.Provider()), "card tokenization rejected")
		return Token{}, err
	}
	last4 := pm.Last4
	if last4 == "" {
		last4 = card.Last4()
	}
	return Token{ID: pm.ID, Last4: last4, Brand: pm.Brand, Provider: s.Provider()}, nil
}
