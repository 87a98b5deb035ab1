package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// ClaimEngine drives claims through the lifecycle
type ClaimEngine interface {
	// CreateDraft allocates a claim id and stores a new Draft claim with its creation event
	CreateDraft(ctx context.Context, in CreateDraftInput, actorID string) (*entity.Claim, error)

	// UpdateDraft patches a Draft claim under the caller's version token
	UpdateDraft(ctx context.Context, claimID string, patch DraftPatch, actorID string, expectedVersion *int64) (*entity.Claim, error)

	// DeleteDraft removes a Draft claim and its events. A non-nil version is enforced.
	DeleteDraft(ctx context.Context, claimID string, expectedVersion *int64) error

	// Transition moves a claim along one rule of the table
	Transition(ctx context.Context, req TransitionRequest) (*entity.Claim, error)

	// AvailableTransitions lists the statuses the caller may move the claim to
	AvailableTransitions(ctx context.Context, claimID string, roles []string) ([]entity.ClaimStatus, error)
}

// Field limits
const (
	maxEmployeeIDLen   = 64
	maxHospitalCodeLen = 32
	maxRemarksLen      = 512
)

// CreateDraftInput is the payload of a new claim
type CreateDraftInput struct {
	EmployeeID    string
	ClaimType     entity.ClaimType
	ClaimDate     time.Time
	AmountClaimed decimal.Decimal
	HospitalCode  *string
}

// Validate checks required fields and amount bounds
func (in CreateDraftInput) Validate() error {
	var verr *apperr.Error
	add := func(field, msg string) {
		if verr == nil {
			verr = apperr.Validation(field, msg)
			verr.Message = "One or more validation errors occurred."
			return
		}
		verr.Add(field, msg)
	}

	employeeID := strings.TrimSpace(in.EmployeeID)
	switch {
	case employeeID == "":
		add("employeeId", "EmployeeId is required.")
	case len(employeeID) > maxEmployeeIDLen:
		add("employeeId", "EmployeeId must be at most 64 characters.")
	}
	if !in.ClaimType.IsValid() {
		add("claimType", "ClaimType is invalid.")
	}
	if in.ClaimDate.IsZero() {
		add("claimDateUtc", "ClaimDateUtc is required.")
	}
	if in.AmountClaimed.IsNegative() {
		add("amountClaimed", "AmountClaimed cannot be negative.")
	}
	if in.HospitalCode != nil && len(*in.HospitalCode) > maxHospitalCodeLen {
		add("hospitalCode", "HospitalCode must be at most 32 characters.")
	}

	if verr != nil {
		return verr
	}
	return nil
}

// DraftPatch holds the fields a Draft update may change. Nil fields are left as stored.
type DraftPatch struct {
	AmountClaimed  *decimal.Decimal
	AmountApproved *decimal.Decimal
	HospitalCode   *string
}

// TransitionRequest asks for one status change
type TransitionRequest struct {
	ClaimID         string
	To              entity.ClaimStatus
	Remarks         *string
	AmountApproved  *decimal.Decimal
	ActorID         string
	Roles           []string
	ExpectedVersion *int64
}
