package types

import (
	"fmt"
	"strings"
)

// Address is a shopper's saved shipping address.
type Address struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	HouseNo     string `json:"house_no"`
	Landmark    string `json:"landmark"`
	City        string `json:"city"`
	State       string `json:"state"`
	PinCode     string `json:"pin_code"`
}

// ShippingLine renders the address the way orders store it:
// "{house_no}, near {landmark}, {city}, {state}, {pin_code}".
func (a Address) ShippingLine() string {
	return fmt.Sprintf("%s, near %s, %s, %s, %s",
		strings.TrimSpace(a.HouseNo),
		strings.TrimSpace(a.Landmark),
		strings.TrimSpace(a.City),
		strings.TrimSpace(a.State),
		strings.TrimSpace(a.PinCode),
	)
}
