package service

import (
	"context"
	"strings"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"go.uber.org/zap"
)

// Paging defaults
const (
	DefaultPageSize  = 50
	MaxPageSize      = 200
	DefaultFIFOLimit = 50
	MaxFIFOLimit     = 500
)

// SearchQuery filters a claim search. Empty fields do not filter.
type SearchQuery struct {
	CNIC        string
	PersonnelNo string
	Status      *entity.ClaimStatus
	FromUTC     *time.Time
	ToUTC       *time.Time
	Page        int
	PageSize    int
}

// SearchResult is one page of claims
type SearchResult struct {
	Total int             `json:"total"`
	Items []*entity.Claim `json:"items"`
}

// ClaimQueryService answers read-only questions about claims
type ClaimQueryService interface {
	Get(ctx context.Context, claimID string) (*entity.Claim, error)
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
	ListEvents(ctx context.Context, claimID string) ([]*entity.ClaimEvent, error)
	ListFIFO(ctx context.Context, status entity.ClaimStatus, limit int) ([]*entity.Claim, error)
}

type claimQueryServiceImpl struct {
	claims    port.ClaimRepository
	events    port.ClaimEventRepository
	employees port.EmployeeResolver
	logger    *zap.Logger
	pageSize  int
	maxPage   int
	fifoMax   int
}

// QueryOption configures the query service
type QueryOption func(*claimQueryServiceImpl)

// WithPageSizes overrides the default and maximum search page sizes
func WithPageSizes(def, max int) QueryOption {
	return func(s *claimQueryServiceImpl) {
		if def > 0 {
			s.pageSize = def
		}
		if max > 0 {
			s.maxPage = max
		}
	}
}

// WithFIFOLimit overrides the maximum FIFO listing size
func WithFIFOLimit(max int) QueryOption {
	return func(s *claimQueryServiceImpl) {
		if max > 0 {
			s.fifoMax = max
		}
	}
}

// NewClaimQueryService creates a new ClaimQueryService. employees may be nil,
// in which case any reference filter yields an empty page.
func NewClaimQueryService(
	claims port.ClaimRepository,
	events port.ClaimEventRepository,
	employees port.EmployeeResolver,
	logger *zap.Logger,
	opts ...QueryOption,
) ClaimQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &claimQueryServiceImpl{
		claims:    claims,
		events:    events,
		employees: employees,
		logger:    logger,
		pageSize:  DefaultPageSize,
		maxPage:   MaxPageSize,
		fifoMax:   MaxFIFOLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a claim by id
func (s *claimQueryServiceImpl) Get(ctx context.Context, claimID string) (*entity.Claim, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		s.logger.Error("Failed to get claim", zap.String("claim_id", claimID), zap.Error(err))
		return nil, apperr.Wrap(err, apperr.CodeInternal, "An unexpected error occurred.")
	}
	if claim == nil {
		return nil, apperr.NotFound("Claim", claimID)
	}
	return claim, nil
}

// Search returns a page of claims ordered by claim date, newest first
func (s *claimQueryServiceImpl) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	page, size := s.normalizePage(q.Page, q.PageSize)

	filter := port.ClaimFilter{
		Status:  q.Status,
		FromUTC: utcPtr(q.FromUTC),
		ToUTC:   utcPtr(q.ToUTC),
		Offset:  (page - 1) * size,
		Limit:   size,
	}

	cnic := strings.TrimSpace(q.CNIC)
	personnelNo := strings.TrimSpace(q.PersonnelNo)
	if cnic != "" || personnelNo != "" {
		employeeID := s.resolveEmployee(ctx, cnic, personnelNo)
		if employeeID == "" {
			return &SearchResult{Total: 0, Items: []*entity.Claim{}}, nil
		}
		filter.EmployeeID = &employeeID
	}

	items, total, err := s.claims.Search(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to search claims", zap.Error(err))
		return nil, apperr.Wrap(err, apperr.CodeInternal, "An unexpected error occurred.")
	}
	if items == nil {
		items = []*entity.Claim{}
	}
	return &SearchResult{Total: total, Items: items}, nil
}

// resolveEmployee prefers the national id over the personnel number
func (s *claimQueryServiceImpl) resolveEmployee(ctx context.Context, cnic, personnelNo string) string {
	if s.employees == nil {
		return ""
	}
	if cnic != "" {
		personnelNo = ""
	}
	employeeID, err := s.employees.Resolve(ctx, cnic, personnelNo)
	if err != nil {
		s.logger.Warn("Employee lookup failed",
			zap.String("code", string(apperr.CodeUpstream)),
			zap.Error(err))
		return ""
	}
	return employeeID
}

func (s *claimQueryServiceImpl) normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.pageSize
	}
	if size > s.maxPage {
		size = s.maxPage
	}
	return page, size
}

// ListEvents returns the audit trail of a claim, oldest first
func (s *claimQueryServiceImpl) ListEvents(ctx context.Context, claimID string) ([]*entity.ClaimEvent, error) {
	events, err := s.events.ListByClaimID(ctx, claimID)
	if err != nil {
		s.logger.Error("Failed to list claim events", zap.String("claim_id", claimID), zap.Error(err))
		return nil, apperr.Wrap(err, apperr.CodeInternal, "An unexpected error occurred.")
	}
	if events == nil {
		events = []*entity.ClaimEvent{}
	}
	return events, nil
}

// ListFIFO returns queued claims in a status by ascending queue number
func (s *claimQueryServiceImpl) ListFIFO(ctx context.Context, status entity.ClaimStatus, limit int) ([]*entity.Claim, error) {
	if !status.IsValid() {
		return nil, apperr.Validation("status", "Status is invalid.")
	}
	if limit <= 0 {
		limit = DefaultFIFOLimit
	}
	if limit > s.fifoMax {
		limit = s.fifoMax
	}

	claims, err := s.claims.ListFIFO(ctx, status, limit)
	if err != nil {
		s.logger.Error("Failed to list FIFO claims", zap.String("status", status.String()), zap.Error(err))
		return nil, apperr.Wrap(err, apperr.CodeInternal, "An unexpected error occurred.")
	}
	if claims == nil {
		claims = []*entity.Claim{}
	}
	return claims, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// Verify interface compliance
var _ ClaimQueryService = (*claimQueryServiceImpl)(nil)
