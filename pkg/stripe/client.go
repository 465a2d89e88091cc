package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

// keyPrefixes maps each environment to the publishable key it accepts.
// Tokenizing runs with the shopper-side key; secret keys are refused.
var keyPrefixes = map[string]string{
	testEnv: "pk_test_",
	liveEnv: "pk_live_",
}

// Client tokenizes cards with Stripe's payment methods API.
type Client struct {
	api    *stripe.Client
	env    string
	logger *logger.Logger
}

// NewClient builds a Stripe API client bound to the publishable key.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	env := cfg.Environment()
	prefix, ok := keyPrefixes[env]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("stripe environment must be %q or %q", testEnv, liveEnv))
	}

	key := strings.TrimSpace(cfg.APIKey)
	switch {
	case key == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe api key required")
	case !strings.HasPrefix(key, prefix):
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("stripe %s environment needs a %s... publishable key", env, prefix))
	}

	api := stripe.NewClient(key)
	logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	return &Client{api: api, env: env, logger: logg}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	return c.env
}
