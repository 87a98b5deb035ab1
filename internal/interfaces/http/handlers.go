package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/garyjia/medical-claims/internal/application/service"
	"github.com/garyjia/medical-claims/internal/application/workflow"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RegisterWriter renders claims as a spreadsheet
type RegisterWriter interface {
	Write(w io.Writer, claims []*entity.Claim, generatedAt time.Time) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   workflow.ClaimEngine
	queries  service.ClaimQueryService
	register RegisterWriter
	health   func(ctx context.Context) error
	version  string
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.ClaimEngine,
	queries service.ClaimQueryService,
	register RegisterWriter,
	health func(ctx context.Context) error,
	version string,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:   engine,
		queries:  queries,
		register: register,
		health:   health,
		version:  version,
		logger:   logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
		}
	}
	c.JSON(status, resp)
}

// WhoAmI handles GET /whoami
func (h *Handlers) WhoAmI(c *gin.Context) {
	roles := callerRoles(c)
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, WhoAmIResponse{
		Sub:   callerActor(c),
		Name:  c.GetString(ctxActorName),
		Roles: roles,
	})
}

// CreateClaim handles POST /api/claims
func (h *Handlers) CreateClaim(c *gin.Context) {
	var req CreateClaimRequest
	if !bindJSON(c, &req) {
		return
	}

	claim, err := h.engine.CreateDraft(c.Request.Context(), req.toInput(), callerActor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", "/api/claims/"+claim.ClaimID)
	respondOK(c, http.StatusCreated, claim)
}

// GetClaim handles GET /api/claims/:claimId
func (h *Handlers) GetClaim(c *gin.Context) {
	claim, err := h.queries.Get(c.Request.Context(), c.Param("claimId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, claim)
}

// UpdateClaim handles PUT /api/claims/:claimId
func (h *Handlers) UpdateClaim(c *gin.Context) {
	var req UpdateClaimRequest
	if !bindJSON(c, &req) {
		return
	}

	patch := workflow.DraftPatch{
		AmountClaimed:  req.AmountClaimed,
		AmountApproved: req.AmountApproved,
		HospitalCode:   req.HospitalCode,
	}
	claim, err := h.engine.UpdateDraft(c.Request.Context(), c.Param("claimId"), patch, callerActor(c), req.RowVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, claim)
}

// DeleteClaim handles DELETE /api/claims/:claimId?rowVersion=n
func (h *Handlers) DeleteClaim(c *gin.Context) {
	var version *int64
	if raw := c.Query("rowVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(c, apperr.Validation("rowVersion", "RowVersion must be an integer."))
			return
		}
		version = &v
	}

	if err := h.engine.DeleteDraft(c.Request.Context(), c.Param("claimId"), version); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transition handles POST /api/claims/:claimId/transition
func (h *Handlers) Transition(c *gin.Context) {
	var body TransitionBody
	if !bindJSON(c, &body) {
		return
	}
	if !body.ToStatus.IsValid() {
		respondError(c, apperr.Validation("toStatus", "ToStatus is invalid."))
		return
	}
	h.transition(c, body.ToStatus, body.Remarks, body.AmountApproved, body.RowVersion)
}

// Action returns a handler that moves the claim to a fixed status.
// defaultRemarks, when set, is recorded if the caller sends none.
func (h *Handlers) Action(to entity.ClaimStatus, defaultRemarks string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body ActionBody
		if !bindJSON(c, &body) {
			return
		}
		remarks := body.Remarks
		if remarks == nil && defaultRemarks != "" {
			remarks = &defaultRemarks
		}
		amount := body.AmountApproved
		if to != entity.StatusApproved {
			amount = nil
		}
		h.transition(c, to, remarks, amount, body.RowVersion)
	}
}

func (h *Handlers) transition(c *gin.Context, to entity.ClaimStatus, remarks *string, amount *decimal.Decimal, version *int64) {
	req := workflow.TransitionRequest{
		ClaimID:         c.Param("claimId"),
		To:              to,
		Remarks:         remarks,
		AmountApproved:  amount,
		ActorID:         callerActor(c),
		Roles:           callerRoles(c),
		ExpectedVersion: version,
	}

	claim, err := h.engine.Transition(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, claim)
}

// AvailableTransitions handles GET /api/claims/:claimId/transitions
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	claimID := c.Param("claimId")
	targets, err := h.engine.AvailableTransitions(c.Request.Context(), claimID, callerRoles(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, TransitionsResponse{ClaimID: claimID, Targets: targets})
}

// Search handles POST /api/claims/search
func (h *Handlers) Search(c *gin.Context) {
	var req SearchRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.queries.Search(c.Request.Context(), req.toQuery())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ExportSearch handles POST /api/claims/search/export
func (h *Handlers) ExportSearch(c *gin.Context) {
	var req SearchRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.queries.Search(c.Request.Context(), req.toQuery())
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now().UTC()
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="claims-register-%s.xlsx"`, now.Format("20060102-150405")))
	c.Status(http.StatusOK)
	if err := h.register.Write(c.Writer, result.Items, now); err != nil {
		h.logger.Error("Failed to export claims register", zap.Error(err))
		c.Abort()
	}
}

// ListEvents handles GET /api/claims/:claimId/events
func (h *Handlers) ListEvents(c *gin.Context) {
	events, err := h.queries.ListEvents(c.Request.Context(), c.Param("claimId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, events)
}

// ListFIFO handles GET /api/claims/fifo/:status?take=n
func (h *Handlers) ListFIFO(c *gin.Context) {
	take := 0
	if raw := c.Query("take"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Validation("take", "Take must be an integer."))
			return
		}
		take = v
	}

	claims, err := h.queries.ListFIFO(c.Request.Context(), entity.ClaimStatus(c.Param("status")), take)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, claims)
}

// bindJSON decodes the body; an empty body leaves v at its zero value
func bindJSON(c *gin.Context, v interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		if err == io.EOF {
			return true
		}
		respondError(c, apperr.Validation("body", "The request body is not valid JSON."))
		return false
	}
	return true
}
