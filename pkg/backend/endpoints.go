package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// ValidateToken asks the backend whether the current bearer token is still accepted.
func (c *Client) ValidateToken(ctx context.Context) (*types.TokenValidation, error) {
	var out types.TokenValidation
	if err := c.do(ctx, request{method: http.MethodGet, path: "/token-validation"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCart(ctx context.Context) (*types.Cart, error) {
	var out types.Cart
	if err := c.do(ctx, request{method: http.MethodGet, path: "/cart"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddCartItem adds quantity units of a product and returns the updated cart.
func (c *Client) AddCartItem(ctx context.Context, productID int64, quantity int) (*types.Cart, error) {
	var out types.Cart
	body := types.AddCartItemRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/cart/items", body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveCartItem(ctx context.Context, itemID int64) (*types.Cart, error) {
	var out types.Cart
	if err := c.do(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/cart/items/%d", itemID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProduct(ctx context.Context, productID int64) (*types.Product, error) {
	var out types.Product
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/products/%d", productID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAddress(ctx context.Context, addressID int64) (*types.Address, error) {
	var out types.Address
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/addresses/%d", addressID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePaymentMethod registers a gateway token with the backend.
func (c *Client) CreatePaymentMethod(ctx context.Context, req types.CreatePaymentMethodRequest) (*types.SavedPaymentMethod, error) {
	var out types.SavedPaymentMethod
	if err := c.do(ctx, request{method: http.MethodPost, path: "/payment-methods", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPaymentMethods(ctx context.Context) ([]types.SavedPaymentMethod, error) {
	var out []types.SavedPaymentMethod
	if err := c.do(ctx, request{method: http.MethodGet, path: "/payment-methods"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeletePaymentMethod(ctx context.Context, id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}
	return c.do(ctx, request{method: http.MethodDelete, path: "/payment-methods/" + url.PathEscape(trimmed)}, nil)
}

// CreateCharge posts the charge record. idempotencyKey must be unique per attempt.
func (c *Client) CreateCharge(ctx context.Context, req types.ChargeRequest, idempotencyKey string) (*types.ChargeResponse, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	var out types.ChargeResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/charges",
		body:    req,
		headers: map[string]string{idempotencyKeyHeader: key},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
