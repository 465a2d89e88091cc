package gateway

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/square"
)

type squareCards interface {
	EnsureShopper(ctx context.Context, params square.ShopperParams) (string, error)
	VaultCard(ctx context.Context, params square.CardParams) (square.VaultedCard, error)
}

// Square vaults a Web Payments nonce as a card on file for the shopper.
type Square struct {
	cards  squareCards
	logger *logger.Logger
}

func NewSquare(cards squareCards, logg *logger.Logger) *Square {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Square{cards: cards, logger: logg}
}

func (s *Square) Provider() string {
	return "square"
}

func (s *Square) Tokenize(ctx context.Context, card checkout.CardInput) (Token, error) {
	nonce := strings.TrimSpace(card.Nonce)
	if nonce == "" {
		return Token{}, pkgerrors.New(pkgerrors.CodeValidation, "card nonce is required")
	}

	customerID, err := s.cards.EnsureShopper(ctx, square.ShopperParams{Email: card.Email, FullName: card.Name})
	if err != nil {
		return Token{}, err
	}
	if customerID == "" {
		return Token{}, pkgerrors.New(pkgerrors.CodeGateway, "card holder could not be registered")
	}

	vaulted, err := s.cards.VaultCard(ctx, square.CardParams{
		CustomerID:     customerID,
		Nonce:          nonce,
		CardholderName: card.Name,
		PostalCode:     card.PostalCode,
	})
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "provider", s.Provider()), "card tokenization rejected")
		return Token{}, err
	}
	if vaulted.ID == "" {
		return Token{}, pkgerrors.New(pkgerrors.CodeGateway, "card could not be saved")
	}
	return Token{ID: vaulted.ID, Last4: vaulted.Last4, Brand: vaulted.Brand, Provider: s.Provider()}, nil
}
