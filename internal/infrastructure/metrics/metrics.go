package metrics

import (
	"strings"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the claim engine
type Metrics struct {
	// Transition latency by edge
	TransitionDuration *prometheus.HistogramVec

	// Failed operations by error code
	OperationFailures *prometheus.CounterVec

	DraftsCreated prometheus.Counter

	// Lost compare-and-swap races by series
	SequenceRetries *prometheus.CounterVec
}

// New registers the claim metrics with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the claim metrics with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medical_claims_transition_duration_seconds",
			Help:    "Duration of claim transitions by edge",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"from", "to"}),

		OperationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medical_claims_operation_failures_total",
			Help: "Failed claim operations by operation and error code",
		}, []string{"operation", "code"}),

		DraftsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "medical_claims_drafts_created_total",
			Help: "Draft claims created",
		}),

		SequenceRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medical_claims_sequence_retries_total",
			Help: "Sequence allocations retried after a serialization failure",
		}, []string{"series"}),
	}
}

// ObserveTransition records one committed transition
func (m *Metrics) ObserveTransition(from, to entity.ClaimStatus, d time.Duration) {
	if m != nil {
		m.TransitionDuration.WithLabelValues(from.String(), to.String()).Observe(d.Seconds())
	}
}

// IncOperationFailure records a failed operation
func (m *Metrics) IncOperationFailure(operation, code string) {
	if m != nil {
		m.OperationFailures.WithLabelValues(operation, code).Inc()
	}
}

// IncDraftCreated records a created draft
func (m *Metrics) IncDraftCreated() {
	if m != nil {
		m.DraftsCreated.Inc()
	}
}

// IncSequenceRetry records a retried allocation. Claim-id series carry the
// fiscal label, so they are collapsed to keep cardinality bounded.
func (m *Metrics) IncSequenceRetry(series string) {
	if m == nil {
		return
	}
	if strings.HasPrefix(series, entity.SeriesClaimIDPrefix) {
		series = "ClaimId"
	}
	m.SequenceRetries.WithLabelValues(series).Inc()
}

var _ port.MetricsRecorder = (*Metrics)(nil)
