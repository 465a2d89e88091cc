package enums

import "fmt"

// PaymentMethodSource records where a resolved payment method came from.
type PaymentMethodSource string

const (
	PaymentMethodSourceGateway PaymentMethodSource = "gateway"
	PaymentMethodSourceSaved   PaymentMethodSource = "saved"
)

var validPaymentMethodSources = []PaymentMethodSource{
	PaymentMethodSourceGateway,
	PaymentMethodSourceSaved,
}

// String implements fmt.Stringer.
func (p PaymentMethodSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethodSource.
func (p PaymentMethodSource) IsValid() bool {
	for _, candidate := range validPaymentMethodSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethodSource converts raw input into a PaymentMethodSource.
func ParsePaymentMethodSource(value string) (PaymentMethodSource, error) {
	for _, candidate := range validPaymentMethodSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method source %q", value)
}
