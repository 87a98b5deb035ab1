package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/garyjia/medical-claims/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// ClaimEventRepository implements port.ClaimEventRepository
type ClaimEventRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewClaimEventRepository creates a new claim event repository
func NewClaimEventRepository(db *sqldb.DB, logger *zap.Logger) port.ClaimEventRepository {
	return &ClaimEventRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes a new audit event
func (r *ClaimEventRepository) Append(ctx context.Context, event *entity.ClaimEvent) error {
	query := `
		INSERT INTO claim_events (
			id, claim_id, from_status, to_status, remarks,
			actor_user_id, timestamp_utc, row_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		event.ID,
		event.ClaimID,
		string(event.FromStatus),
		string(event.ToStatus),
		event.Remarks,
		event.ActorUserID,
		event.Timestamp.UTC(),
		event.RowVersion,
	)
	if err != nil {
		r.logger.Error("Failed to append claim event", zap.String("claim_id", event.ClaimID), zap.Error(err))
		return fmt.Errorf("failed to append claim event: %w", err)
	}

	return nil
}

// ListByClaimID retrieves all events for a claim in chronological order
func (r *ClaimEventRepository) ListByClaimID(ctx context.Context, claimID string) ([]*entity.ClaimEvent, error) {
	query := `
		SELECT id, claim_id, from_status, to_status, remarks,
			actor_user_id, timestamp_utc, row_version
		FROM claim_events
		WHERE claim_id = ?
		ORDER BY timestamp_utc ASC, id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), claimID)
	if err != nil {
		r.logger.Error("Failed to list claim events", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to list claim events: %w", err)
	}
	defer rows.Close()

	events := []*entity.ClaimEvent{}
	for rows.Next() {
		var (
			e          entity.ClaimEvent
			fromStatus string
			toStatus   string
		)
		err := rows.Scan(
			&e.ID,
			&e.ClaimID,
			&fromStatus,
			&toStatus,
			&e.Remarks,
			&e.ActorUserID,
			&e.Timestamp,
			&e.RowVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim event: %w", err)
		}
		e.FromStatus = entity.ClaimStatus(fromStatus)
		e.ToStatus = entity.ClaimStatus(toStatus)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, &e)
	}

	return events, rows.Err()
}

// Verify interface compliance
var _ port.ClaimEventRepository = (*ClaimEventRepository)(nil)
