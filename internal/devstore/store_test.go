package devstore

import (
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.Seed()
	return s
}

func TestCartTotals(t *testing.T) {
	t.Parallel()
	s := seeded(t)

	if _, err := s.AddToCart("u1", 2, 2); err != nil {
		t.Fatalf("add mug: %v", err)
	}
	cart, err := s.AddToCart("u1", 3, 1)
	if err != nil {
		t.Fatalf("add notebook: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(cart.Items))
	}
	if !cart.TotalPrice.Equal(decimal.RequireFromString("250")) {
		t.Fatalf("expected total 250, got %s", cart.TotalPrice)
	}

	cart, err = s.AddToCart("u1", 2, 1)
	if err != nil {
		t.Fatalf("merge mug: %v", err)
	}
	if len(cart.Items) != 2 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line, got %+v", cart.Items)
	}

	if other := s.Cart("u2"); len(other.Items) != 0 {
		t.Fatalf("carts leaked across users")
	}
}

func TestAddToCartRejectsOverStock(t *testing.T) {
	t.Parallel()
	s := seeded(t)

	if _, err := s.AddToCart("u1", 1, 6); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.AddToCart("u1", 5, 1); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of stock validation error, got %v", err)
	}
	if _, err := s.AddToCart("u1", 99, 1); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveFromCart(t *testing.T) {
	t.Parallel()
	s := seeded(t)

	cart, _ := s.AddToCart("u1", 2, 1)
	cart, err := s.RemoveFromCart("u1", cart.Items[0].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Items) != 0 || !cart.TotalPrice.IsZero() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
	if _, err := s.RemoveFromCart("u1", 42); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDefaultAddressSeededPerUser(t *testing.T) {
	t.Parallel()
	s := seeded(t)

	addr, err := s.Address("u1", DefaultAddressID)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if addr.City != "Pune" {
		t.Fatalf("unexpected address %+v", addr)
	}
	if _, err := s.Address("u1", 8); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPaymentMethodsOnlyListSaved(t *testing.T) {
	t.Parallel()
	s := seeded(t)

	if _, err := s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_1", Last4: "4242", Save: true}); err != nil {
		t.Fatalf("create saved: %v", err)
	}
	if _, err := s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_2", Last4: "1111"}); err != nil {
		t.Fatalf("create unsaved: %v", err)
	}
	if _, err := s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_1"}); !pkgerrors.Is(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	listed := s.ListPaymentMethods("u1")
	if len(listed) != 1 || listed[0].ID != "pm_1" {
		t.Fatalf("unexpected listing %+v", listed)
	}

	if err := s.DeletePaymentMethod("u1", "pm_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeletePaymentMethod("u1", "pm_1"); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestChargeRecordsOrder(t *testing.T) {
	t.Parallel()
	s := seeded(t)
	_, _ = s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_1", Last4: "4242"})

	resp, err := s.Charge("u1", types.ChargeRequest{
		Email:         "asha@example.com",
		PaymentMethod: "pm_1",
		Amount:        decimal.RequireFromString("250.00"),
		TotalPrice:    decimal.RequireFromString("250.00"),
		CardNumber:    "4242",
		Address:       "12B, near Clock Tower, Pune, MH, 411001",
		OrderedItem:   types.MultipleItemsDescriptor,
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if resp.OrderID == "" || resp.Status != "succeeded" {
		t.Fatalf("unexpected response %+v", resp)
	}

	orders := s.Orders("u1")
	if len(orders) != 1 {
		t.Fatalf("expected one order, got %d", len(orders))
	}
	if orders[0].DeliveredAt != types.DeliveredAtPending || !orders[0].PaidStatus {
		t.Fatalf("unexpected order %+v", orders[0])
	}
}

func TestChargeDeclines(t *testing.T) {
	t.Parallel()
	s := seeded(t)
	_, _ = s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_d", Last4: DeclinedLast4})
	_, _ = s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_i", Last4: InsufficientFundsLast4})

	cases := map[string]string{
		"pm_d": "Your card was declined.",
		"pm_i": "Your card has insufficient funds.",
	}
	for id, msg := range cases {
		_, err := s.Charge("u1", types.ChargeRequest{PaymentMethod: id, Amount: decimal.NewFromInt(10)})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeGateway || typed.Message() != msg {
			t.Fatalf("%s: expected gateway error %q, got %v", id, msg, err)
		}
	}
	if len(s.Orders("u1")) != 0 {
		t.Fatalf("declined charges must not create orders")
	}
}

func TestChargeValidation(t *testing.T) {
	t.Parallel()
	s := seeded(t)
	_, _ = s.CreatePaymentMethod("u1", types.CreatePaymentMethodRequest{Token: "pm_1", Last4: "4242"})

	if _, err := s.Charge("u1", types.ChargeRequest{PaymentMethod: "pm_1"}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected zero amount rejected, got %v", err)
	}
	if _, err := s.Charge("u1", types.ChargeRequest{PaymentMethod: "pm_x", Amount: decimal.NewFromInt(1)}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown method rejected, got %v", err)
	}
	if _, err := s.Charge("u2", types.ChargeRequest{PaymentMethod: "pm_1", Amount: decimal.NewFromInt(1)}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected another user's method rejected, got %v", err)
	}
}
