package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/garyjia/medical-claims/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// ErrNoTransaction is returned when a counter is advanced outside a transaction
var ErrNoTransaction = errors.New("sequence allocation requires a transaction")

// SequenceRepository implements port.SequenceRepository
type SequenceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence counter repository
func NewSequenceRepository(db *sqldb.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next returns the current value of the named counter and advances it by one.
// The counter row is created on first use.
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	tx := sqldb.TxFromContext(ctx)
	if tx == nil {
		return 0, ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO sequence_counters (name, next_value) VALUES (?, 1) ON CONFLICT (name) DO NOTHING`),
		name)
	if err != nil {
		r.logger.Error("Failed to initialise sequence counter", zap.String("name", name), zap.Error(err))
		return 0, fmt.Errorf("failed to initialise sequence %s: %w", name, err)
	}

	var current int64
	err = tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT next_value FROM sequence_counters WHERE name = ?`),
		name).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}

	result, err := tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE sequence_counters SET next_value = ? WHERE name = ? AND next_value = ?`),
		current+1, name, current)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("sequence %s moved past %d: %w", name, current, port.ErrSerialization)
	}

	return current, nil
}

// Peek returns the counter row without advancing it, or nil when the series is unused
func (r *SequenceRepository) Peek(ctx context.Context, name string) (*entity.SequenceCounter, error) {
	counter := entity.SequenceCounter{Name: name}
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		r.db.Rebind(`SELECT next_value FROM sequence_counters WHERE name = ?`),
		name).Scan(&counter.NextValue)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return &counter, nil
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
