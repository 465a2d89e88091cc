package square

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

var hosts = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// Client vaults shopper cards through the Square customers and cards APIs.
type Client struct {
	sdk    *sqclient.Client
	env    string
	logger *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	env := cfg.Environment()
	host, ok := hosts[env]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("square environment %q is not supported", env))
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square access token required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(host), sqoption.WithToken(token))
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{sdk: sdk, env: env, logger: logg}, nil
}

func (c *Client) Environment() string {
	return c.env
}

func (c *Client) newIdempotencyKey(op string) string {
	return "sf-" + op + "-" + uuid.NewString()
}

func (c *Client) trace(ctx context.Context, op string, fields map[string]any) {
	fields["operation"] = op
	c.logger.Debug(c.logger.WithFields(ctx, fields), "square call ok")
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	mapped := mapError(err, op)
	c.logger.Warn(c.logger.WithFields(ctx, map[string]any{
		"operation": op,
		"code":      pkgerrors.CodeOf(mapped),
	}), "square call failed")
	return mapped
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
