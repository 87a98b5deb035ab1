package event

// Type identifies the type of domain event
type Type string

const (
	TypeClaimCreated       Type = "claim.created"
	TypeClaimStatusChanged Type = "claim.status_changed"
	TypeClaimApproved      Type = "claim.approved"
	TypeClaimRejected      Type = "claim.rejected"
	TypeClaimReturned      Type = "claim.returned"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeClaimCreated,
		TypeClaimStatusChanged,
		TypeClaimApproved,
		TypeClaimRejected,
		TypeClaimReturned:
		return true
	default:
		return false
	}
}
