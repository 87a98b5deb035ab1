package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/pkg/database"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	dialect database.Dialect
	backoff time.Duration
	logger  *zap.Logger
}

// Option configures DB
type Option func(*DB)

// WithBackoff sets the base delay between retried units of work
func WithBackoff(d time.Duration) Option {
	return func(db *DB) {
		db.backoff = d
	}
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, dialect database.Dialect, logger *zap.Logger, opts ...Option) *DB {
	db := &DB{
		DB:      sqlDB,
		dialect: dialect,
		backoff: 10 * time.Millisecond,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Dialect returns the SQL dialect of the store
func (db *DB) Dialect() database.Dialect {
	return db.dialect
}

// Rebind rewrites ? placeholders for the store's dialect
func (db *DB) Rebind(query string) string {
	return db.dialect.Rebind(query)
}

// Executor returns the transaction carried by ctx, or the pool
func (db *DB) Executor(ctx context.Context) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// WithTransaction implements port.TransactionManager.
// A call inside an existing transaction joins it. An outermost call re-runs fn on
// serialization failure up to the configured number of retries.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error, opts ...port.TxOption) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	o := port.ApplyTxOptions(opts...)
	isolation := o.Isolation
	if db.dialect == database.DialectSQLite {
		// immediate-mode transactions already serialize writers
		isolation = sql.LevelDefault
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = db.runTx(ctx, fn, isolation)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if attempt >= o.MaxRetries {
			break
		}

		if o.OnRetry != nil {
			o.OnRetry(attempt+1, err)
		}
		db.logger.Warn("Transaction serialization failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", o.MaxRetries),
			zap.Error(err))

		if werr := sleep(ctx, db.jitter(attempt)); werr != nil {
			return werr
		}
	}

	if errors.Is(err, port.ErrSerialization) {
		return err
	}
	return fmt.Errorf("%w: %v", port.ErrSerialization, err)
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error, isolation sql.IsolationLevel) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	// Handle panic and ensure rollback
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (db *DB) jitter(attempt int) time.Duration {
	if db.backoff <= 0 {
		return 0
	}
	base := db.backoff * time.Duration(attempt+1)
	return base + rand.N(db.backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TxFromContext retrieves the transaction from context if present
func TxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
