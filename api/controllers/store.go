package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Store is the storefront state the dev backend serves.
type Store interface {
	Product(id int64) (types.Product, error)
	Cart(userID string) types.Cart
	AddToCart(userID string, productID int64, quantity int) (types.Cart, error)
	RemoveFromCart(userID string, itemID int64) (types.Cart, error)
	Address(userID string, id int64) (types.Address, error)
	CreatePaymentMethod(userID string, req types.CreatePaymentMethodRequest) (types.SavedPaymentMethod, error)
	ListPaymentMethods(userID string) []types.SavedPaymentMethod
	DeletePaymentMethod(userID, id string) error
	Charge(userID string, req types.ChargeRequest) (types.ChargeResponse, error)
}

func storeUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "store unavailable")
}

func requireUser(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}

func int64Param(r *http.Request, name, label string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+label)
	}
	return id, nil
}
