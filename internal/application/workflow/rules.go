package workflow

import (
	"context"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/garyjia/medical-claims/internal/domain/event"
	domainwf "github.com/garyjia/medical-claims/internal/domain/workflow"
)

// Approval amount messages
const (
	msgApprovedRequired = "AmountApproved is required to Approve."
	msgApprovedNegative = "AmountApproved cannot be negative."
	msgApprovedRange    = "AmountApproved must be between 0 and AmountClaimed."
)

// DefaultRules returns the medical claim workflow
func DefaultRules(queue port.SequenceAllocator, d dispatcher.Dispatcher) []domainwf.Rule {
	var (
		read     = entity.RoleMedicalRead
		write    = entity.RoleMedicalWrite
		hospital = entity.RoleHospitalReview
		smb      = entity.RoleSMBDecide
	)

	return []domainwf.Rule{
		{
			From: entity.StatusDraft, To: entity.StatusSubmitted,
			RequiredRoles: []string{read, write},
			Before:        assignQueueNumber(queue),
		},
		{
			From: entity.StatusSubmitted, To: entity.StatusUnderHospitalReview,
			RequiredRoles: []string{hospital, write},
		},
		{
			From: entity.StatusUnderHospitalReview, To: entity.StatusUnderSMBReview,
			RequiredRoles: []string{hospital, write},
		},
		{
			From: entity.StatusSubmitted, To: entity.StatusUnderSMBReview,
			RequiredRoles: []string{read, write, smb},
		},
		{
			From: entity.StatusUnderSMBReview, To: entity.StatusApproved,
			RequiredRoles: []string{smb, write},
			Before:        applyApprovedAmount,
			After:         publish(d, event.TypeClaimApproved),
		},
		{
			From: entity.StatusUnderSMBReview, To: entity.StatusRejected,
			RequiredRoles: []string{smb, write},
			After:         publish(d, event.TypeClaimRejected),
		},
		{
			From: entity.StatusSubmitted, To: entity.StatusReturned,
			RequiredRoles: []string{read, write},
			After:         publish(d, event.TypeClaimReturned),
		},
		{
			From: entity.StatusUnderHospitalReview, To: entity.StatusReturned,
			RequiredRoles: []string{read, write},
			After:         publish(d, event.TypeClaimReturned),
		},
		{
			From: entity.StatusUnderSMBReview, To: entity.StatusReturned,
			RequiredRoles: []string{read, write},
			After:         publish(d, event.TypeClaimReturned),
		},
	}
}

// NewDefaultTable builds the workflow table, failing on misconfiguration
func NewDefaultTable(queue port.SequenceAllocator, d dispatcher.Dispatcher) (*domainwf.Table, error) {
	return domainwf.NewTable(DefaultRules(queue, d)...)
}

// assignQueueNumber gives a claim its FIFO position on first submission only
func assignQueueNumber(queue port.SequenceAllocator) domainwf.Hook {
	return func(ctx context.Context, claim *entity.Claim, tc domainwf.TransitionContext) error {
		if claim.QueueNo != nil {
			return nil
		}
		n, err := queue.Allocate(ctx, entity.SeriesClaimQueue)
		if err != nil {
			return err
		}
		claim.QueueNo = &n
		return nil
	}
}

func applyApprovedAmount(ctx context.Context, claim *entity.Claim, tc domainwf.TransitionContext) error {
	switch {
	case tc.AmountApproved == nil:
		return apperr.Validation("amountApproved", msgApprovedRequired)
	case tc.AmountApproved.IsNegative():
		return apperr.Validation("amountApproved", msgApprovedNegative)
	case tc.AmountApproved.GreaterThan(claim.AmountClaimed):
		return apperr.Validation("amountApproved", msgApprovedRange)
	}

	v := *tc.AmountApproved
	claim.AmountApproved = &v
	return nil
}

func publish(d dispatcher.Dispatcher, eventType event.Type) domainwf.Hook {
	return func(ctx context.Context, claim *entity.Claim, tc domainwf.TransitionContext) error {
		if d == nil {
			return nil
		}
		d.DispatchAsync(ctx, claimEvent(eventType, claim, tc))
		return nil
	}
}

func claimEvent(eventType event.Type, claim *entity.Claim, tc domainwf.TransitionContext) *event.Event {
	payload := map[string]interface{}{
		event.KeyFromStatus:    tc.From.String(),
		event.KeyToStatus:      tc.To.String(),
		event.KeyActorUserID:   tc.ActorID,
		event.KeyEmployeeID:    claim.EmployeeID,
		event.KeyAmountClaimed: claim.AmountClaimed.StringFixed(2),
		event.KeyRowVersion:    claim.RowVersion,
	}
	if tc.Remarks != nil {
		payload[event.KeyRemarks] = *tc.Remarks
	}
	if claim.AmountApproved != nil {
		payload[event.KeyAmountApproved] = claim.AmountApproved.StringFixed(2)
	}
	if claim.QueueNo != nil {
		payload[event.KeyQueueNo] = *claim.QueueNo
	}
	return event.NewEvent(eventType, claim.ClaimID, payload)
}
