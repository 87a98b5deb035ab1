package metrics

import (
	"testing"
	"time"

	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncDraftCreated()
	m.IncDraftCreated()
	m.IncOperationFailure("transition", "Conflict")
	m.IncSequenceRetry("ClaimId:2025-26")
	m.IncSequenceRetry("ClaimId:2026-27")
	m.IncSequenceRetry(entity.SeriesClaimQueue)
	m.ObserveTransition(entity.StatusDraft, entity.StatusSubmitted, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DraftsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationFailures.WithLabelValues("transition", "Conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SequenceRetries.WithLabelValues("ClaimId")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceRetries.WithLabelValues("ClaimQueue")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TransitionDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncDraftCreated()
		m.IncOperationFailure("x", "y")
		m.IncSequenceRetry("ClaimQueue")
		m.ObserveTransition(entity.StatusDraft, entity.StatusSubmitted, time.Second)
	})
}
