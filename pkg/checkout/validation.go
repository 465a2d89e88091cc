package checkout

import (
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// ParseQuantity reads the quantity route value of a single-product checkout.
// An empty value means 1. Values below 1 are clamped to 1 and reported
// through clamped; anything that is not an integer is rejected.
func ParseQuantity(raw string) (qty int, clamped bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 1, false, nil
	}
	value, convErr := strconv.Atoi(trimmed)
	if convErr != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeValidation, convErr, "quantity must be a whole number").
			WithDetails(map[string]any{"quantity": raw})
	}
	if value < 1 {
		return 1, true, nil
	}
	return value, false, nil
}

// StockValidationInput describes one requested line against its available stock.
type StockValidationInput struct {
	ProductID   int64
	ProductName string
	Stock       int
	Quantity    int
}

// StockViolationDetail exposes the data returned to callers when a validation fails.
type StockViolationDetail struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"`
	Available    int    `json:"available"`
	RequestedQty int    `json:"requested_qty"`
}

// ValidateStock ensures no line asks for more units than are in stock.
func ValidateStock(items []StockValidationInput) error {
	var violations []StockViolationDetail
	outOfStock := 0
	for _, item := range items {
		if item.Quantity <= item.Stock && item.Stock > 0 {
			continue
		}
		if item.Stock <= 0 {
			outOfStock++
		}
		violations = append(violations, StockViolationDetail{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Available:    max(item.Stock, 0),
			RequestedQty: item.Quantity,
		})
	}
	if len(violations) == 0 {
		return nil
	}
	msg := fmt.Sprintf("requested quantity exceeds stock for %d item(s)", len(violations))
	if len(violations) == 1 {
		v := violations[0]
		if outOfStock == 1 {
			msg = "out of stock"
		} else {
			msg = fmt.Sprintf("only %d left in stock", v.Available)
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{
		"violations": violations,
	})
}
