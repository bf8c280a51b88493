// Package metrics provides prometheus observability for the issuance and
// verification paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks request outcomes and critical path durations.
type Metrics struct {
	IssuanceOutcomes     *prometheus.CounterVec
	IssuanceDuration     prometheus.Histogram
	VerificationOutcomes *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		IssuanceOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "web3id_issuance_total",
			Help: "Credential issuance requests by outcome",
		}, []string{"outcome"}),
		IssuanceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "web3id_issuance_duration_seconds",
			Help:    "Duration of credential issuance requests end to end",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		VerificationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "web3id_verification_total",
			Help: "Presentation verification requests by outcome",
		}, []string{"outcome"}),
		VerificationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "web3id_verification_duration_seconds",
			Help:    "Duration of presentation verification requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// RecordIssuance records one issuance request outcome and its duration.
func (m *Metrics) RecordIssuance(outcome string, start time.Time) {
	m.IssuanceOutcomes.WithLabelValues(outcome).Inc()
	m.IssuanceDuration.Observe(time.Since(start).Seconds())
}

// RecordVerification records one verification request outcome and its
// duration.
func (m *Metrics) RecordVerification(outcome string, start time.Time) {
	m.VerificationOutcomes.WithLabelValues(outcome).Inc()
	m.VerificationDuration.Observe(time.Since(start).Seconds())
}
