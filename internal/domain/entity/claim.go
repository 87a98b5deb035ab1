package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim is a medical claim moving through the lifecycle
type Claim struct {
	ClaimID         string           `json:"claimId"`
	EmployeeID      string           `json:"employeeId"`
	ClaimType       ClaimType        `json:"claimType"`
	ClaimDate       time.Time        `json:"claimDateUtc"`
	AmountClaimed   decimal.Decimal  `json:"amountClaimed"`
	AmountApproved  *decimal.Decimal `json:"amountApproved,omitempty"`
	HospitalCode    *string          `json:"hospitalCode,omitempty"`
	Status          ClaimStatus      `json:"status"`
	QueueNo         *int64           `json:"queueNo,omitempty"`
	CreatedByUserID string           `json:"createdByUserId"`
	CreatedAt       time.Time        `json:"createdAtUtc"`
	LastUpdatedAt   time.Time        `json:"lastUpdatedAtUtc"`
	RowVersion      int64            `json:"rowVersion"`
}

// Clone returns a deep copy so hooks can mutate a working copy
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	cp := *c
	if c.AmountApproved != nil {
		v := *c.AmountApproved
		cp.AmountApproved = &v
	}
	if c.HospitalCode != nil {
		v := *c.HospitalCode
		cp.HospitalCode = &v
	}
	if c.QueueNo != nil {
		v := *c.QueueNo
		cp.QueueNo = &v
	}
	return &cp
}

// ApprovedWithinClaimed reports whether the approved amount, if any, lies in [0, AmountClaimed]
func (c *Claim) ApprovedWithinClaimed() bool {
	if c.AmountApproved == nil {
		return true
	}
	return !c.AmountApproved.IsNegative() && c.AmountApproved.LessThanOrEqual(c.AmountClaimed)
}

// ClaimEvent is an immutable audit record of one claim mutation
type ClaimEvent struct {
	ID          string      `json:"id"`
	ClaimID     string      `json:"claimId"`
	FromStatus  ClaimStatus `json:"fromStatus"`
	ToStatus    ClaimStatus `json:"toStatus"`
	Remarks     string      `json:"remarks"`
	ActorUserID string      `json:"actorUserId"`
	Timestamp   time.Time   `json:"timestampUtc"`
	RowVersion  int64       `json:"rowVersion"`
}

// SequenceCounter is a named monotonic counter row
type SequenceCounter struct {
	Name      string `json:"name"`
	NextValue int64  `json:"nextValue"`
}
