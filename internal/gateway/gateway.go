package gateway

import (
	"context"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/square"
	"github.com/angelmondragon/storefront-checkout/pkg/stripe"
)

// Token is the reusable payment instrument issued by a card gateway.
type Token struct {
	ID       string
	Last4    string
	Brand    string
	Provider string
}

// Gateway exchanges raw card input for a payment token.
type Gateway interface {
	Tokenize(ctx context.Context, card checkout.CardInput) (Token, error)
	Provider() string
}

// New builds the gateway selected by cfg.Gateway.Provider.
func New(ctx context.Context, cfg config.Config, logg *logger.Logger) (Gateway, error) {
	switch cfg.Gateway.Normalized() {
	case config.GatewayStripe:
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		return NewStripe(client, logg), nil
	case config.GatewaySquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		return NewSquare(client, logg), nil
	case config.GatewayFake:
		return NewFake(), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown gateway provider").
			WithDetails(map[string]any{"provider": cfg.Gateway.Provider})
	}
}

// Instrumented wraps a gateway with tokenization metrics.
type Instrumented struct {
	next    Gateway
	metrics *metrics.CheckoutMetrics
}

func NewInstrumented(next Gateway, m *metrics.CheckoutMetrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (i *Instrumented) Tokenize(ctx context.Context, card checkout.CardInput) (Token, error) {
	token, err := i.next.Tokenize(ctx, card)
	i.metrics.ObserveTokenization(i.next.Provider(), err)
	return token, err
}

func (i *Instrumented) Provider() string {
	return i.next.Provider()
}
