package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSequenceRepo hands out values from an in-memory map and can fail the first calls
type mockSequenceRepo struct {
	counters  map[string]int64
	failFirst int
	failErr   error
	calls     int
}

func newMockSequenceRepo() *mockSequenceRepo {
	return &mockSequenceRepo{counters: make(map[string]int64)}
}

func (m *mockSequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	m.calls++
	if m.calls <= m.failFirst {
		return 0, m.failErr
	}
	if _, ok := m.counters[name]; !ok {
		m.counters[name] = 1
	}
	v := m.counters[name]
	m.counters[name] = v + 1
	return v, nil
}

func (m *mockSequenceRepo) Peek(ctx context.Context, name string) (*entity.SequenceCounter, error) {
	v, ok := m.counters[name]
	if !ok {
		return nil, nil
	}
	return &entity.SequenceCounter{Name: name, NextValue: v}, nil
}

// mockTxManager re-runs fn on serialization failure like the real manager
type mockTxManager struct {
	lastOpts port.TxOptions
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error, opts ...port.TxOption) error {
	o := port.ApplyTxOptions(opts...)
	m.lastOpts = o
	var err error
	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		if attempt > 0 && o.OnRetry != nil {
			o.OnRetry(attempt, err)
		}
		err = fn(ctx)
		if !errors.Is(err, port.ErrSerialization) {
			return err
		}
	}
	return err
}

type mockMetrics struct {
	port.NoopMetrics
	retries map[string]int
}

func (m *mockMetrics) IncSequenceRetry(series string) {
	if m.retries == nil {
		m.retries = make(map[string]int)
	}
	m.retries[series]++
}

func TestGenerator_AllocateIsSequentialPerSeries(t *testing.T) {
	repo := newMockSequenceRepo()
	gen := NewGenerator(repo, &mockTxManager{}, zap.NewNop())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := gen.Allocate(ctx, entity.SeriesClaimQueue)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := gen.Allocate(ctx, "ClaimId:2025-26")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	queue, err := gen.NextQueueNo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), queue)
}

func TestGenerator_AllocateUsesSerializableRetries(t *testing.T) {
	repo := newMockSequenceRepo()
	repo.failFirst = 2
	repo.failErr = port.ErrSerialization
	txm := &mockTxManager{}
	metrics := &mockMetrics{}

	gen := NewGenerator(repo, txm, zap.NewNop(), WithMaxRetries(3), WithMetrics(metrics))

	got, err := gen.Allocate(context.Background(), entity.SeriesClaimQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	assert.Equal(t, 3, txm.lastOpts.MaxRetries)
	assert.Equal(t, port.ApplyTxOptions(port.Serializable()).Isolation, txm.lastOpts.Isolation)
	assert.Equal(t, 2, metrics.retries[entity.SeriesClaimQueue])
}

func TestGenerator_AllocateExhaustionIsConcurrencyError(t *testing.T) {
	repo := newMockSequenceRepo()
	repo.failFirst = 100
	repo.failErr = port.ErrSerialization

	gen := NewGenerator(repo, &mockTxManager{}, zap.NewNop(), WithMaxRetries(2))

	_, err := gen.Allocate(context.Background(), entity.SeriesClaimQueue)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeConcurrency))
	// Still recognisable as a serialization failure by an enclosing unit of work
	assert.ErrorIs(t, err, port.ErrSerialization)
	assert.Equal(t, 3, repo.calls)
}

func TestGenerator_AllocateOtherErrors(t *testing.T) {
	repo := newMockSequenceRepo()
	repo.failFirst = 1
	repo.failErr = errors.New("disk full")

	gen := NewGenerator(repo, &mockTxManager{}, zap.NewNop())

	_, err := gen.Allocate(context.Background(), entity.SeriesClaimQueue)
	require.Error(t, err)
	assert.False(t, apperr.HasCode(err, apperr.CodeConcurrency))
	assert.Equal(t, 1, repo.calls)

	_, err = gen.Allocate(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestFiscalYearLabel(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		month    int
		day      int
		useRange bool
		want     string
	}{
		{"after july start", time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 7, 1, true, "2025-26"},
		{"on start day", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), 7, 1, true, "2025-26"},
		{"just before start", time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC), 7, 1, true, "2024-25"},
		{"without range", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 7, 1, false, "2024"},
		{"century rollover", time.Date(2099, 12, 1, 0, 0, 0, 0, time.UTC), 7, 1, true, "2099-00"},
		{"calendar year", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1, 1, false, "2026"},
		{"day clamped to month length", time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC), 2, 31, true, "2025-26"},
		{"day clamped, before start", time.Date(2025, 2, 27, 12, 0, 0, 0, time.UTC), 2, 31, true, "2024-25"},
		{"non utc input", time.Date(2025, 7, 1, 2, 0, 0, 0, time.FixedZone("PKT", 5*3600)), 7, 1, true, "2024-25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FiscalYearLabel(tt.now, tt.month, tt.day, tt.useRange))
		})
	}
}

func TestClaimIDConfig_Format(t *testing.T) {
	cfg := DefaultClaimIDConfig()
	assert.Equal(t, "Claim-2025-26-00001", cfg.Format("2025-26", 1))
	assert.Equal(t, "Claim-2025-26-123456", cfg.Format("2025-26", 123456))

	cfg.Separator = "/"
	cfg.Pad = 3
	cfg.Prefix = "MC"
	assert.Equal(t, "MC/2025/042", cfg.Format("2025", 42))
}

func TestClaimIDGenerator_NextClaimID(t *testing.T) {
	repo := newMockSequenceRepo()
	gen := NewGenerator(repo, &mockTxManager{}, zap.NewNop())

	clock := time.Date(2026, 6, 30, 10, 0, 0, 0, time.UTC)
	ids := NewClaimIDGenerator(gen, DefaultClaimIDConfig(), func() time.Time { return clock })
	ctx := context.Background()

	first, err := ids.NextClaimID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Claim-2025-26-00001", first)

	second, err := ids.NextClaimID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Claim-2025-26-00002", second)

	// New fiscal year restarts numbering
	clock = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	next, err := ids.NextClaimID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Claim-2026-27-00001", next)

	assert.Equal(t, int64(3), repo.counters["ClaimId:2025-26"])
}
