package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/garyjia/medical-claims/internal/infrastructure/persistence/sqldb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const claimColumns = `
	claim_id, employee_id, claim_type, claim_date, amount_claimed, amount_approved,
	hospital_code, status, queue_no, created_by_user_id, created_at, last_updated_at, row_version`

// ClaimRepository implements port.ClaimRepository
type ClaimRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sqldb.DB, logger *zap.Logger) port.ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new claim. A duplicate claim id or queue number is reported as a serialization failure.
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	query := `
		INSERT INTO claims (` + claimColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		claim.ClaimID,
		claim.EmployeeID,
		string(claim.ClaimType),
		claim.ClaimDate.UTC(),
		claim.AmountClaimed,
		nullDecimal(claim.AmountApproved),
		nullString(claim.HospitalCode),
		string(claim.Status),
		nullInt64(claim.QueueNo),
		claim.CreatedByUserID,
		claim.CreatedAt.UTC(),
		claim.LastUpdatedAt.UTC(),
		claim.RowVersion,
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return fmt.Errorf("claim %s collides with an existing row: %w", claim.ClaimID, port.ErrSerialization)
		}
		r.logger.Error("Failed to create claim", zap.String("claim_id", claim.ClaimID), zap.Error(err))
		return fmt.Errorf("failed to create claim: %w", err)
	}

	return nil
}

// GetByID retrieves a claim by its id
func (r *ClaimRepository) GetByID(ctx context.Context, claimID string) (*entity.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE claim_id = ?`

	claim, err := scanClaim(r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), claimID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get claim by ID", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	return claim, nil
}

// Update writes all mutable columns under a row version compare-and-swap
func (r *ClaimRepository) Update(ctx context.Context, claim *entity.Claim, expectedVersion int64) error {
	query := `
		UPDATE claims
		SET employee_id = ?, claim_type = ?, claim_date = ?, amount_claimed = ?,
			amount_approved = ?, hospital_code = ?, status = ?, queue_no = ?,
			last_updated_at = ?, row_version = row_version + 1
		WHERE claim_id = ? AND row_version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		claim.EmployeeID,
		string(claim.ClaimType),
		claim.ClaimDate.UTC(),
		claim.AmountClaimed,
		nullDecimal(claim.AmountApproved),
		nullString(claim.HospitalCode),
		string(claim.Status),
		nullInt64(claim.QueueNo),
		claim.LastUpdatedAt.UTC(),
		claim.ClaimID,
		expectedVersion,
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return fmt.Errorf("claim %s queue number collides: %w", claim.ClaimID, port.ErrSerialization)
		}
		r.logger.Error("Failed to update claim", zap.String("claim_id", claim.ClaimID), zap.Error(err))
		return fmt.Errorf("failed to update claim: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("claim %s at version %d: %w", claim.ClaimID, expectedVersion, port.ErrVersionConflict)
	}

	claim.RowVersion = expectedVersion + 1
	return nil
}

// Delete removes a claim and its audit events
func (r *ClaimRepository) Delete(ctx context.Context, claimID string, expectedVersion *int64) error {
	exec := r.db.Executor(ctx)

	query := `DELETE FROM claims WHERE claim_id = ?`
	args := []interface{}{claimID}
	if expectedVersion != nil {
		query += ` AND row_version = ?`
		args = append(args, *expectedVersion)
	}

	result, err := exec.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to delete claim", zap.String("claim_id", claimID), zap.Error(err))
		return fmt.Errorf("failed to delete claim: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if expectedVersion != nil {
			return fmt.Errorf("claim %s at version %d: %w", claimID, *expectedVersion, port.ErrVersionConflict)
		}
		return fmt.Errorf("claim %s: %w", claimID, port.ErrNotFound)
	}

	// Covers stores opened without foreign key enforcement
	if _, err := exec.ExecContext(ctx, r.db.Rebind(`DELETE FROM claim_events WHERE claim_id = ?`), claimID); err != nil {
		return fmt.Errorf("failed to delete claim events: %w", err)
	}

	return nil
}

// Search returns one page of claims ordered by claim date descending, and the total match count
func (r *ClaimRepository) Search(ctx context.Context, filter port.ClaimFilter) ([]*entity.Claim, int, error) {
	var where []string
	var args []interface{}

	if filter.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *filter.EmployeeID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.FromUTC != nil {
		where = append(where, "claim_date >= ?")
		args = append(args, filter.FromUTC.UTC())
	}
	if filter.ToUTC != nil {
		where = append(where, "claim_date <= ?")
		args = append(args, filter.ToUTC.UTC())
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	exec := r.db.Executor(ctx)

	var total int
	if err := exec.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM claims`+clause), args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count claims", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}
	if total == 0 {
		return []*entity.Claim{}, 0, nil
	}

	query := `SELECT ` + claimColumns + ` FROM claims` + clause +
		` ORDER BY claim_date DESC, claim_id ASC LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)

	claims, err := r.queryClaims(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// ListFIFO returns claims in a status that hold a queue number, oldest queue number first
func (r *ClaimRepository) ListFIFO(ctx context.Context, status entity.ClaimStatus, limit int) ([]*entity.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE status = ? AND queue_no IS NOT NULL
		ORDER BY queue_no ASC
		LIMIT ?`

	return r.queryClaims(ctx, query, string(status), limit)
}

func (r *ClaimRepository) queryClaims(ctx context.Context, query string, args ...interface{}) ([]*entity.Claim, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to query claims", zap.Error(err))
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	claims := []*entity.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*entity.Claim, error) {
	var (
		c              entity.Claim
		claimType      string
		status         string
		amountApproved decimal.NullDecimal
		hospitalCode   sql.NullString
		queueNo        sql.NullInt64
	)

	err := row.Scan(
		&c.ClaimID,
		&c.EmployeeID,
		&claimType,
		&c.ClaimDate,
		&c.AmountClaimed,
		&amountApproved,
		&hospitalCode,
		&status,
		&queueNo,
		&c.CreatedByUserID,
		&c.CreatedAt,
		&c.LastUpdatedAt,
		&c.RowVersion,
	)
	if err != nil {
		return nil, err
	}

	c.ClaimType = entity.ClaimType(claimType)
	c.Status = entity.ClaimStatus(status)
	c.ClaimDate = c.ClaimDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastUpdatedAt = c.LastUpdatedAt.UTC()

	if amountApproved.Valid {
		v := amountApproved.Decimal
		c.AmountApproved = &v
	}
	if hospitalCode.Valid {
		v := hospitalCode.String
		c.HospitalCode = &v
	}
	if queueNo.Valid {
		v := queueNo.Int64
		c.QueueNo = &v
	}

	return &c, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Verify interface compliance
var _ port.ClaimRepository = (*ClaimRepository)(nil)
