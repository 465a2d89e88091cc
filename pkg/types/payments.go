package types

import "github.com/shopspring/decimal"

// DeliveredAtPending is the delivered_at value of an order that has not shipped.
const DeliveredAtPending = "Not Delivered"

// MultipleItemsDescriptor names a charge covering a whole cart.
const MultipleItemsDescriptor = "Multiple Items"

// SavedPaymentMethod is a card the backend keeps on file for the shopper.
type SavedPaymentMethod struct {
	ID       string `json:"id"`
	Last4    string `json:"last4"`
	Brand    string `json:"brand,omitempty"`
	Email    string `json:"email,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// CreatePaymentMethodRequest is the body of POST /payment-methods.
type CreatePaymentMethodRequest struct {
	Token string `json:"token" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Save  bool   `json:"save"`
	Last4 string `json:"last4,omitempty" validate:"omitempty,len=4,numeric"`
	Brand string `json:"brand,omitempty"`
}

// ChargeRequest is the body of POST /charges.
type ChargeRequest struct {
	Email         string          `json:"email" validate:"required,email"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Name          string          `json:"name"`
	CardNumber    string          `json:"card_number"`
	Address       string          `json:"address" validate:"required"`
	OrderedItem   string          `json:"ordered_item" validate:"required"`
	PaidStatus    bool            `json:"paid_status"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	IsDelivered   bool            `json:"is_delivered"`
	DeliveredAt   string          `json:"delivered_at"`
}

// ChargeResponse is returned by a successful POST /charges.
type ChargeResponse struct {
	OrderID     string          `json:"order_id"`
	OrderedItem string          `json:"ordered_item"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      string          `json:"status"`
}

// TokenValidation is returned by GET /token-validation.
type TokenValidation struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}
