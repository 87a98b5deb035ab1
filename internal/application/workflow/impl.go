package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/garyjia/medical-claims/internal/domain/event"
	domainwf "github.com/garyjia/medical-claims/internal/domain/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// User-facing messages
const (
	msgOnlyDraftUpdate     = "Only Draft claims can be updated."
	msgOnlyDraftDelete     = "Only Draft claims can be deleted."
	msgVersionRequired     = "RowVersion is required."
	msgTransitionVersion   = "RowVersion is required for transitions."
	msgRoleMissing         = "Required role is missing for this transition."
	msgModifiedByOther     = "The claim was modified by another user. Please refresh and retry."
	msgSerializationFailed = "The request could not be completed because of concurrent activity. Please retry."
	msgUnexpected          = "An unexpected error occurred."
)

// engineImpl is the concrete implementation of ClaimEngine
type engineImpl struct {
	claims     port.ClaimRepository
	events     port.ClaimEventRepository
	txManager  port.TransactionManager
	ids        port.ClaimIDGenerator
	table      *domainwf.Table
	dispatcher dispatcher.Dispatcher
	metrics    port.MetricsRecorder
	logger     *zap.Logger
	now        func() time.Time
	maxRetries int
}

// EngineOption configures the claim engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxRetries bounds re-runs of a unit of work that lost a serialization race
func WithMaxRetries(n int) EngineOption {
	return func(e *engineImpl) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// NewEngine creates a new claim engine
func NewEngine(
	claims port.ClaimRepository,
	events port.ClaimEventRepository,
	txManager port.TransactionManager,
	ids port.ClaimIDGenerator,
	table *domainwf.Table,
	opts ...EngineOption,
) ClaimEngine {
	e := &engineImpl{
		claims:     claims,
		events:     events,
		txManager:  txManager,
		ids:        ids,
		table:      table,
		metrics:    port.NoopMetrics{},
		logger:     zap.NewNop(),
		now:        time.Now,
		maxRetries: 5,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateDraft validates the input, allocates a claim id and stores the claim with its creation event
func (e *engineImpl) CreateDraft(ctx context.Context, in CreateDraftInput, actorID string) (*entity.Claim, error) {
	if err := in.Validate(); err != nil {
		return nil, e.fail("create_draft", err)
	}

	var claim *entity.Claim
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		claimID, err := e.ids.NextClaimID(txCtx)
		if err != nil {
			return err
		}

		now := e.timestamp()
		claim = &entity.Claim{
			ClaimID:         claimID,
			EmployeeID:      in.EmployeeID,
			ClaimType:       in.ClaimType,
			ClaimDate:       in.ClaimDate.UTC(),
			AmountClaimed:   in.AmountClaimed,
			HospitalCode:    in.HospitalCode,
			Status:          entity.StatusDraft,
			CreatedByUserID: actorID,
			CreatedAt:       now,
			LastUpdatedAt:   now,
			RowVersion:      1,
		}

		if err := e.claims.Create(txCtx, claim); err != nil {
			return err
		}

		return e.appendEvent(txCtx, claim.ClaimID, entity.StatusDraft, entity.StatusDraft, entity.RemarksDraftCreated, actorID, now)
	}, port.WithRetries(e.maxRetries))
	if err != nil {
		return nil, e.fail("create_draft", err)
	}

	e.metrics.IncDraftCreated()
	e.logger.Info("Draft claim created",
		zap.String("claim_id", claim.ClaimID),
		zap.String("employee_id", claim.EmployeeID),
		zap.String("actor", actorID))

	e.emit(ctx, event.TypeClaimCreated, claim, domainwf.TransitionContext{
		From: entity.StatusDraft, To: entity.StatusDraft, ActorID: actorID,
	})

	return claim, nil
}

// UpdateDraft applies a patch to a Draft claim under the caller's version token
func (e *engineImpl) UpdateDraft(ctx context.Context, claimID string, patch DraftPatch, actorID string, expectedVersion *int64) (*entity.Claim, error) {
	var updated *entity.Claim
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := e.load(txCtx, claimID)
		if err != nil {
			return err
		}
		if current.Status != entity.StatusDraft {
			return apperr.New(apperr.CodeRuleViolation, msgOnlyDraftUpdate)
		}
		if expectedVersion == nil {
			return apperr.Validation("rowVersion", msgVersionRequired)
		}

		working := current.Clone()
		if patch.AmountClaimed != nil {
			working.AmountClaimed = *patch.AmountClaimed
		}
		if patch.AmountApproved != nil {
			v := *patch.AmountApproved
			working.AmountApproved = &v
		}
		if patch.HospitalCode != nil {
			v := *patch.HospitalCode
			working.HospitalCode = &v
		}
		if err := validateDraftAmounts(working); err != nil {
			return err
		}
		if working.HospitalCode != nil && len(*working.HospitalCode) > maxHospitalCodeLen {
			return apperr.Validation("hospitalCode", "HospitalCode must be at most 32 characters.")
		}

		now := e.timestamp()
		working.LastUpdatedAt = now
		if err := e.claims.Update(txCtx, working, *expectedVersion); err != nil {
			return err
		}

		if err := e.appendEvent(txCtx, working.ClaimID, entity.StatusDraft, entity.StatusDraft, entity.RemarksDraftUpdated, actorID, now); err != nil {
			return err
		}

		updated = working
		return nil
	}, port.WithRetries(e.maxRetries))
	if err != nil {
		return nil, e.fail("update_draft", err)
	}

	e.logger.Info("Draft claim updated",
		zap.String("claim_id", updated.ClaimID),
		zap.Int64("row_version", updated.RowVersion),
		zap.String("actor", actorID))

	return updated, nil
}

// validateDraftAmounts checks the effective amounts after a patch
func validateDraftAmounts(c *entity.Claim) error {
	var verr *apperr.Error
	add := func(field, msg string) {
		if verr == nil {
			verr = apperr.Validation(field, msg)
			verr.Message = "One or more validation errors occurred."
			return
		}
		verr.Add(field, msg)
	}

	if c.AmountClaimed.IsNegative() {
		add("amountClaimed", "AmountClaimed cannot be negative.")
	}
	if c.AmountApproved != nil {
		switch {
		case c.AmountApproved.IsNegative():
			add("amountApproved", "AmountApproved cannot be negative.")
		case c.AmountApproved.GreaterThan(c.AmountClaimed):
			add("amountApproved", "AmountApproved cannot exceed AmountClaimed.")
		}
	}

	if verr != nil {
		return verr
	}
	return nil
}

// DeleteDraft removes a Draft claim and its events
func (e *engineImpl) DeleteDraft(ctx context.Context, claimID string, expectedVersion *int64) error {
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := e.load(txCtx, claimID)
		if err != nil {
			return err
		}
		if current.Status != entity.StatusDraft {
			return apperr.New(apperr.CodeRuleViolation, msgOnlyDraftDelete)
		}
		return e.claims.Delete(txCtx, claimID, expectedVersion)
	}, port.WithRetries(e.maxRetries))
	if err != nil {
		return e.fail("delete_draft", err)
	}

	e.logger.Info("Draft claim deleted", zap.String("claim_id", claimID))
	return nil
}

// Transition runs the gates in order: load, version, rule, role, pre-hook, write, audit.
// The post-hook and the status event run after commit.
func (e *engineImpl) Transition(ctx context.Context, req TransitionRequest) (*entity.Claim, error) {
	start := time.Now()

	var (
		updated *entity.Claim
		rule    domainwf.Rule
		tc      domainwf.TransitionContext
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := e.load(txCtx, req.ClaimID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion == nil {
			return apperr.Validation("rowVersion", msgTransitionVersion)
		}
		if req.Remarks != nil && len(*req.Remarks) > maxRemarksLen {
			return apperr.Validation("remarks", "Remarks must be at most 512 characters.")
		}

		from := current.Status
		r, ok := e.table.Lookup(from, req.To)
		if !ok {
			return apperr.New(apperr.CodeInvalidTransition, fmt.Sprintf("Transition %s → %s is not allowed.", from, req.To))
		}
		if !r.Permits(req.Roles) {
			return apperr.New(apperr.CodeForbidden, msgRoleMissing)
		}

		t := domainwf.TransitionContext{
			From:           from,
			To:             req.To,
			ActorID:        req.ActorID,
			Roles:          req.Roles,
			Remarks:        req.Remarks,
			AmountApproved: req.AmountApproved,
		}

		working := current.Clone()
		if r.Before != nil {
			if err := r.Before(txCtx, working, t); err != nil {
				return err
			}
		}

		now := e.timestamp()
		working.Status = req.To
		working.LastUpdatedAt = now
		if err := e.claims.Update(txCtx, working, *req.ExpectedVersion); err != nil {
			return err
		}

		remarks := fmt.Sprintf("%s → %s", from, req.To)
		if req.Remarks != nil {
			remarks = *req.Remarks
		}
		if err := e.appendEvent(txCtx, working.ClaimID, from, req.To, remarks, req.ActorID, now); err != nil {
			return err
		}

		updated, rule, tc = working, r, t
		return nil
	}, port.WithRetries(e.maxRetries))
	if err != nil {
		return nil, e.fail("transition", err)
	}

	e.metrics.ObserveTransition(tc.From, tc.To, time.Since(start))
	e.logger.Info("Claim transitioned",
		zap.String("claim_id", updated.ClaimID),
		zap.String("from", tc.From.String()),
		zap.String("to", tc.To.String()),
		zap.Int64("row_version", updated.RowVersion),
		zap.String("actor", req.ActorID))

	if rule.After != nil {
		if err := rule.After(ctx, updated.Clone(), tc); err != nil {
			e.logger.Warn("Post-transition hook failed",
				zap.String("claim_id", updated.ClaimID),
				zap.String("to", tc.To.String()),
				zap.Error(err))
		}
	}

	e.emit(ctx, event.TypeClaimStatusChanged, updated, tc)

	return updated, nil
}

// AvailableTransitions lists the statuses the caller's roles allow from the claim's current status
func (e *engineImpl) AvailableTransitions(ctx context.Context, claimID string, roles []string) ([]entity.ClaimStatus, error) {
	claim, err := e.load(ctx, claimID)
	if err != nil {
		return nil, e.fail("available_transitions", err)
	}

	targets := e.table.PermittedTargets(claim.Status, roles)
	if targets == nil {
		targets = []entity.ClaimStatus{}
	}
	return targets, nil
}

func (e *engineImpl) load(ctx context.Context, claimID string) (*entity.Claim, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, apperr.NotFound("Claim", claimID)
	}
	return claim, nil
}

func (e *engineImpl) appendEvent(ctx context.Context, claimID string, from, to entity.ClaimStatus, remarks, actorID string, at time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate event id: %w", err)
	}

	return e.events.Append(ctx, &entity.ClaimEvent{
		ID:          id.String(),
		ClaimID:     claimID,
		FromStatus:  from,
		ToStatus:    to,
		Remarks:     remarks,
		ActorUserID: actorID,
		Timestamp:   at,
		RowVersion:  1,
	})
}

func (e *engineImpl) emit(ctx context.Context, eventType event.Type, claim *entity.Claim, tc domainwf.TransitionContext) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, claimEvent(eventType, claim, tc))
}

func (e *engineImpl) timestamp() time.Time {
	return e.now().UTC()
}

// fail classifies err into the user-visible taxonomy and records it
func (e *engineImpl) fail(operation string, err error) error {
	var out *apperr.Error
	switch {
	case errors.As(err, &out):
	case errors.Is(err, port.ErrVersionConflict):
		out = apperr.Wrap(err, apperr.CodeConflict, msgModifiedByOther)
	case errors.Is(err, port.ErrNotFound):
		out = apperr.Wrap(err, apperr.CodeNotFound, "Claim not found.")
	case errors.Is(err, port.ErrSerialization):
		out = apperr.Wrap(err, apperr.CodeConcurrency, msgSerializationFailed)
	default:
		e.logger.Error("Claim operation failed",
			zap.String("operation", operation),
			zap.Error(err))
		out = apperr.Wrap(err, apperr.CodeInternal, msgUnexpected)
	}

	e.metrics.IncOperationFailure(operation, string(out.Code))
	return out
}

// Verify interface compliance
var _ ClaimEngine = (*engineImpl)(nil)
