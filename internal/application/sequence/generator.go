package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"go.uber.org/zap"
)

// DefaultMaxRetries bounds re-runs of an allocation that lost a race
const DefaultMaxRetries = 5

// ErrEmptySeries is returned when no series name is given
var ErrEmptySeries = errors.New("sequence series name is required")

// Generator allocates strictly increasing values per named series
type Generator struct {
	repo       port.SequenceRepository
	txm        port.TransactionManager
	maxRetries int
	metrics    port.MetricsRecorder
	logger     *zap.Logger
}

// Option configures the Generator
type Option func(*Generator)

// WithMaxRetries overrides the retry bound
func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) Option {
	return func(g *Generator) {
		if m != nil {
			g.metrics = m
		}
	}
}

// NewGenerator creates a sequence generator
func NewGenerator(repo port.SequenceRepository, txm port.TransactionManager, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		repo:       repo,
		txm:        txm,
		maxRetries: DefaultMaxRetries,
		metrics:    port.NoopMetrics{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allocate returns the next value of series. Outside a transaction it runs its own
// serializable transaction with bounded retries; inside one it joins the caller's
// unit of work and a lost race aborts that unit.
func (g *Generator) Allocate(ctx context.Context, series string) (int64, error) {
	if series == "" {
		return 0, ErrEmptySeries
	}

	var value int64
	err := g.txm.WithTransaction(ctx, func(ctx context.Context) error {
		v, err := g.repo.Next(ctx, series)
		if err != nil {
			return err
		}
		value = v
		return nil
	},
		port.Serializable(),
		port.WithRetries(g.maxRetries),
		port.OnRetry(func(attempt int, err error) {
			g.metrics.IncSequenceRetry(series)
		}),
	)
	if err != nil {
		if errors.Is(err, port.ErrSerialization) {
			return 0, apperr.Wrap(err, apperr.CodeConcurrency,
				fmt.Sprintf("Could not allocate the next %s value, please retry.", series))
		}
		g.logger.Error("Failed to allocate sequence value", zap.String("series", series), zap.Error(err))
		return 0, fmt.Errorf("failed to allocate %s: %w", series, err)
	}

	g.logger.Debug("Allocated sequence value", zap.String("series", series), zap.Int64("value", value))
	return value, nil
}

// NextQueueNo allocates from the global FIFO queue series
func (g *Generator) NextQueueNo(ctx context.Context) (int64, error) {
	return g.Allocate(ctx, entity.SeriesClaimQueue)
}

// Verify interface compliance
var _ port.SequenceAllocator = (*Generator)(nil)
