package enums

import "fmt"

// TargetPhase is the load state of the checkout target.
type TargetPhase string

const (
	TargetPhaseLoading TargetPhase = "loading"
	TargetPhaseReady   TargetPhase = "ready"
	TargetPhaseError   TargetPhase = "error"
)

var validTargetPhases = []TargetPhase{
	TargetPhaseLoading,
	TargetPhaseReady,
	TargetPhaseError,
}

// String implements fmt.Stringer.
func (t TargetPhase) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TargetPhase.
func (t TargetPhase) IsValid() bool {
	for _, candidate := range validTargetPhases {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTargetPhase converts raw input into a TargetPhase.
func ParseTargetPhase(value string) (TargetPhase, error) {
	for _, candidate := range validTargetPhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid target phase %q", value)
}
