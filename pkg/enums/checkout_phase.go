package enums

import "fmt"

// CheckoutPhase is the coarse phase of one checkout visit.
type CheckoutPhase string

const (
	CheckoutPhaseResolvingTarget       CheckoutPhase = "resolving_target"
	CheckoutPhaseAwaitingPaymentMethod CheckoutPhase = "awaiting_payment_method"
	CheckoutPhaseAwaitingCharge        CheckoutPhase = "awaiting_charge"
	CheckoutPhaseDone                  CheckoutPhase = "done"
	CheckoutPhaseUnauthenticated       CheckoutPhase = "unauthenticated"
	CheckoutPhaseAbandoned             CheckoutPhase = "abandoned"
)

var validCheckoutPhases = []CheckoutPhase{
	CheckoutPhaseResolvingTarget,
	CheckoutPhaseAwaitingPaymentMethod,
	CheckoutPhaseAwaitingCharge,
	CheckoutPhaseDone,
	CheckoutPhaseUnauthenticated,
	CheckoutPhaseAbandoned,
}

// String implements fmt.Stringer.
func (c CheckoutPhase) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutPhase.
func (c CheckoutPhase) IsValid() bool {
	for _, candidate := range validCheckoutPhases {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckoutPhase converts raw input into a CheckoutPhase.
func ParseCheckoutPhase(value string) (CheckoutPhase, error) {
	for _, candidate := range validCheckoutPhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout phase %q", value)
}
