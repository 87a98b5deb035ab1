package workflow

import (
	"context"

	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// TransitionContext carries the caller-supplied inputs of one transition
type TransitionContext struct {
	From           entity.ClaimStatus
	To             entity.ClaimStatus
	ActorID        string
	Roles          []string
	Remarks        *string
	AmountApproved *decimal.Decimal
}

// Hook runs around a transition. Before hooks may mutate the claim and abort by returning an error.
type Hook func(ctx context.Context, claim *entity.Claim, tc TransitionContext) error

// Rule describes one permitted edge of the lifecycle
type Rule struct {
	From          entity.ClaimStatus
	To            entity.ClaimStatus
	RequiredRoles []string
	Before        Hook
	After         Hook
}

// Permits returns true if the caller holds at least one of the required roles.
// Medical.Admin is accepted wherever MedicalClaims:Write is.
func (r Rule) Permits(roles []string) bool {
	held := make(map[string]bool, len(roles))
	for _, role := range roles {
		held[role] = true
	}

	for _, required := range r.RequiredRoles {
		if held[required] {
			return true
		}
		if required == entity.RoleMedicalWrite && held[entity.RoleMedicalAdmin] {
			return true
		}
	}
	return false
}
