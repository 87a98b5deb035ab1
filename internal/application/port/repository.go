package port

import (
	"context"
	"database/sql"
	"time"

	"github.com/garyjia/medical-claims/internal/domain/entity"
)

// ClaimFilter narrows a claim search. Nil fields do not filter.
type ClaimFilter struct {
	EmployeeID *string
	Status     *entity.ClaimStatus
	FromUTC    *time.Time
	ToUTC      *time.Time
	Offset     int
	Limit      int
}

// ClaimRepository defines persistence operations for Claim.
// GetByID returns nil, nil when the claim does not exist.
type ClaimRepository interface {
	Create(ctx context.Context, claim *entity.Claim) error
	GetByID(ctx context.Context, claimID string) (*entity.Claim, error)

	// Update writes the claim only if the stored row version equals expectedVersion.
	// On success claim.RowVersion is advanced; on mismatch ErrVersionConflict is returned.
	Update(ctx context.Context, claim *entity.Claim, expectedVersion int64) error

	// Delete removes the claim and its events. A non-nil expectedVersion is enforced.
	Delete(ctx context.Context, claimID string, expectedVersion *int64) error

	Search(ctx context.Context, filter ClaimFilter) ([]*entity.Claim, int, error)
	ListFIFO(ctx context.Context, status entity.ClaimStatus, limit int) ([]*entity.Claim, error)
}

// ClaimEventRepository defines persistence operations for the append-only audit trail
type ClaimEventRepository interface {
	Append(ctx context.Context, event *entity.ClaimEvent) error
	ListByClaimID(ctx context.Context, claimID string) ([]*entity.ClaimEvent, error)
}

// SequenceRepository advances named counters. Next must run inside a transaction
// and returns ErrSerialization when a concurrent writer won the compare-and-swap.
type SequenceRepository interface {
	Next(ctx context.Context, name string) (int64, error)
	Peek(ctx context.Context, name string) (*entity.SequenceCounter, error)
}

// TxOptions configures a unit of work
type TxOptions struct {
	Isolation  sql.IsolationLevel
	MaxRetries int
	OnRetry    func(attempt int, err error)
}

// TxOption modifies TxOptions
type TxOption func(*TxOptions)

// Serializable runs the unit of work at serializable isolation
func Serializable() TxOption {
	return func(o *TxOptions) {
		o.Isolation = sql.LevelSerializable
	}
}

// WithRetries re-runs the whole unit of work up to n extra times on serialization failure
func WithRetries(n int) TxOption {
	return func(o *TxOptions) {
		if n >= 0 {
			o.MaxRetries = n
		}
	}
}

// OnRetry registers a callback invoked before each retried attempt
func OnRetry(fn func(attempt int, err error)) TxOption {
	return func(o *TxOptions) {
		o.OnRetry = fn
	}
}

// ApplyTxOptions folds options over the defaults
func ApplyTxOptions(opts ...TxOption) TxOptions {
	o := TxOptions{Isolation: sql.LevelDefault}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TransactionManager handles database transactions.
// A nested call joins the enclosing transaction and never retries on its own.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error
}
