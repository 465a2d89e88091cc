package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout visit activity: phase changes,
// tokenizations, charge attempts and session expiries.
type CheckoutMetrics struct {
	phases       *prometheus.CounterVec
	tokenize     *prometheus.CounterVec
	charges      *prometheus.CounterVec
	chargeTiming *prometheus.HistogramVec
	expirations  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	phases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_phase_transitions_total",
		Help: "Checkout visit phase transitions by target phase.",
	}, []string{"phase"})
	tokenize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_tokenizations_total",
		Help: "Card tokenizations by gateway provider and outcome.",
	}, []string{"provider", "outcome"})
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_charge_attempts_total",
		Help: "Charge attempts by outcome.",
	}, []string{"outcome"})
	chargeTiming := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_charge_duration_seconds",
		Help:    "Duration of charge requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	expirations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_session_expirations_total",
		Help: "Sessions invalidated while a checkout visit was open.",
	})
	reg.MustRegister(phases, tokenize, charges, chargeTiming, expirations)
	return &CheckoutMetrics{
		phases:       phases,
		tokenize:     tokenize,
		charges:      charges,
		chargeTiming: chargeTiming,
		expirations:  expirations,
	}
}

func (m *CheckoutMetrics) ObservePhase(phase string) {
	if m == nil || m.phases == nil {
		return
	}
	m.phases.WithLabelValues(normalizeLabel(phase)).Inc()
}

func (m *CheckoutMetrics) ObserveTokenization(provider string, err error) {
	if m == nil || m.tokenize == nil {
		return
	}
	m.tokenize.WithLabelValues(normalizeLabel(provider), outcome(err)).Inc()
}

// ObserveCharge counts the attempt and records how long the request took.
func (m *CheckoutMetrics) ObserveCharge(duration time.Duration, err error) {
	if m == nil || m.charges == nil {
		return
	}
	result := outcome(err)
	m.charges.WithLabelValues(result).Inc()
	m.chargeTiming.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *CheckoutMetrics) IncSessionExpired() {
	if m == nil || m.expirations == nil {
		return
	}
	m.expirations.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
