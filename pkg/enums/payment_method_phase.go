package enums

import "fmt"

// PaymentMethodPhase tracks the resolution of the payment instrument for a visit.
type PaymentMethodPhase string

const (
	PaymentMethodPhaseIdle     PaymentMethodPhase = "idle"
	PaymentMethodPhaseCreating PaymentMethodPhase = "creating"
	PaymentMethodPhaseReady    PaymentMethodPhase = "ready"
	PaymentMethodPhaseFailed   PaymentMethodPhase = "failed"
)

var validPaymentMethodPhases = []PaymentMethodPhase{
	PaymentMethodPhaseIdle,
	PaymentMethodPhaseCreating,
	PaymentMethodPhaseReady,
	PaymentMethodPhaseFailed,
}

// String implements fmt.Stringer.
func (p PaymentMethodPhase) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethodPhase.
func (p PaymentMethodPhase) IsValid() bool {
	for _, candidate := range validPaymentMethodPhases {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethodPhase converts raw input into a PaymentMethodPhase.
func ParsePaymentMethodPhase(value string) (PaymentMethodPhase, error) {
	for _, candidate := range validPaymentMethodPhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method phase %q", value)
}
