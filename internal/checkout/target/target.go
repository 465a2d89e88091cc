package target

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// MultipleItemsLabel describes a cart checkout on the charge record.
const MultipleItemsLabel = "Multiple Items"

// Target is what a checkout visit pays for: a Single product or the Cart.
type Target interface {
	// Amount is the total owed, rounded to currency precision.
	Amount() decimal.Decimal
	// Descriptor names the purchase on the charge and the status view.
	Descriptor() string

	isTarget()
}

// Single is a direct purchase of quantity units of one product.
type Single struct {
	Product  types.Product
	Quantity int
}

func (s Single) Amount() decimal.Decimal {
	if s.Quantity < 1 || s.Product.Price.IsNegative() {
		return decimal.Zero
	}
	return s.Product.Price.Mul(decimal.NewFromInt(int64(s.Quantity))).Round(2)
}

func (s Single) Descriptor() string {
	return strings.TrimSpace(s.Product.Name)
}

func (Single) isTarget() {}

// Cart is a purchase of every line currently in the shopper's cart.
type Cart struct {
	Items []cart.LineItem
}

func (c Cart) Amount() decimal.Decimal {
	total := cart.Total(c.Items)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

func (Cart) Descriptor() string {
	return MultipleItemsLabel
}

func (Cart) isTarget() {}

// Route carries the raw route inputs of a checkout visit. An empty
// ProductID means the cart is being checked out.
type Route struct {
	ProductID string
	Quantity  string
}

func (r Route) IsCart() bool {
	return strings.TrimSpace(r.ProductID) == ""
}

// State is the resolver's current view of the target. Err is set only in
// the error phase and is display-only.
type State struct {
	Route   Route
	Phase   enums.TargetPhase
	Target  Target
	Err     error
	Clamped bool
}

// Ready reports whether a target has been resolved.
func (s State) Ready() bool {
	return s.Phase == enums.TargetPhaseReady && s.Target != nil
}
