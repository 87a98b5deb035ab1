package entity

// ClaimStatus is a position in the claim lifecycle
type ClaimStatus string

const (
	StatusDraft               ClaimStatus = "Draft"
	StatusSubmitted           ClaimStatus = "Submitted"
	StatusUnderHospitalReview ClaimStatus = "UnderHospitalReview"
	StatusUnderSMBReview      ClaimStatus = "UnderSMBReview"
	StatusApproved            ClaimStatus = "Approved"
	StatusRejected            ClaimStatus = "Rejected"
	StatusReturned            ClaimStatus = "Returned"
)

var validStatuses = map[ClaimStatus]bool{
	StatusDraft:               true,
	StatusSubmitted:           true,
	StatusUnderHospitalReview: true,
	StatusUnderSMBReview:      true,
	StatusApproved:            true,
	StatusRejected:            true,
	StatusReturned:            true,
}

var terminalStatuses = map[ClaimStatus]bool{
	StatusApproved: true,
	StatusRejected: true,
	StatusReturned: true,
}

// IsValid returns true if the status is one of the lifecycle statuses
func (s ClaimStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if no transition leaves the status
func (s ClaimStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s ClaimStatus) String() string {
	return string(s)
}

// ClaimType is the medical category of a claim
type ClaimType string

const (
	ClaimTypeOutpatient ClaimType = "Outpatient"
	ClaimTypeInpatient  ClaimType = "Inpatient"
	ClaimTypeMaternity  ClaimType = "Maternity"
	ClaimTypeDental     ClaimType = "Dental"
	ClaimTypeOptical    ClaimType = "Optical"
)

// IsValid returns true if the claim type is a known category
func (t ClaimType) IsValid() bool {
	switch t {
	case ClaimTypeOutpatient, ClaimTypeInpatient, ClaimTypeMaternity, ClaimTypeDental, ClaimTypeOptical:
		return true
	default:
		return false
	}
}

// Role names carried in the caller's verified token
const (
	RoleMedicalRead    = "MedicalClaims:Read"
	RoleMedicalWrite   = "MedicalClaims:Write"
	RoleHospitalReview = "Hospital.Review"
	RoleSMBDecide      = "SMB.Decide"
	RoleMedicalAdmin   = "Medical.Admin"
)

// Sequence series names
const (
	SeriesClaimQueue    = "ClaimQueue"
	SeriesClaimIDPrefix = "ClaimId:"
)

// Remarks written on audit events that are not transitions
const (
	RemarksDraftCreated = "Draft created"
	RemarksDraftUpdated = "Draft updated"
)
