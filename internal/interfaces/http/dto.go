package http

import (
	"time"

	"github.com/garyjia/medical-claims/internal/application/service"
	"github.com/garyjia/medical-claims/internal/application/workflow"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CreateClaimRequest is the body of POST /api/claims
type CreateClaimRequest struct {
	EmployeeID    string           `json:"employeeId"`
	ClaimType     entity.ClaimType `json:"claimType"`
	ClaimDateUTC  time.Time        `json:"claimDateUtc"`
	AmountClaimed decimal.Decimal  `json:"amountClaimed"`
	HospitalCode  *string          `json:"hospitalCode"`
}

func (r CreateClaimRequest) toInput() workflow.CreateDraftInput {
	return workflow.CreateDraftInput{
		EmployeeID:    r.EmployeeID,
		ClaimType:     r.ClaimType,
		ClaimDate:     r.ClaimDateUTC,
		AmountClaimed: r.AmountClaimed,
		HospitalCode:  r.HospitalCode,
	}
}

// UpdateClaimRequest is the body of PUT /api/claims/:claimId
type UpdateClaimRequest struct {
	AmountClaimed  *decimal.Decimal `json:"amountClaimed"`
	AmountApproved *decimal.Decimal `json:"amountApproved"`
	HospitalCode   *string          `json:"hospitalCode"`
	RowVersion     *int64           `json:"rowVersion"`
}

// TransitionBody is the body of the generic transition endpoint
type TransitionBody struct {
	ToStatus       entity.ClaimStatus `json:"toStatus"`
	Remarks        *string            `json:"remarks"`
	AmountApproved *decimal.Decimal   `json:"amountApproved"`
	RowVersion     *int64             `json:"rowVersion"`
}

// ActionBody is the body of the fixed-target transition endpoints
type ActionBody struct {
	Remarks        *string          `json:"remarks"`
	AmountApproved *decimal.Decimal `json:"amountApproved"`
	RowVersion     *int64           `json:"rowVersion"`
}

// SearchRequest is the body of POST /api/claims/search
type SearchRequest struct {
	CNIC        string              `json:"cnic"`
	PersonnelNo string              `json:"personnelNo"`
	Status      *entity.ClaimStatus `json:"status"`
	FromUTC     *time.Time          `json:"fromUtc"`
	ToUTC       *time.Time          `json:"toUtc"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"pageSize"`
}

func (r SearchRequest) toQuery() service.SearchQuery {
	return service.SearchQuery{
		CNIC:        r.CNIC,
		PersonnelNo: r.PersonnelNo,
		Status:      r.Status,
		FromUTC:     r.FromUTC,
		ToUTC:       r.ToUTC,
		Page:        r.Page,
		PageSize:    r.PageSize,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// WhoAmIResponse echoes the verified caller identity
type WhoAmIResponse struct {
	Sub   string   `json:"sub"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

// TransitionsResponse lists the statuses the caller may move a claim to
type TransitionsResponse struct {
	ClaimID string               `json:"claimId"`
	Targets []entity.ClaimStatus `json:"targets"`
}
