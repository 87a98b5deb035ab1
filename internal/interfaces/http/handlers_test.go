package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/application/service"
	"github.com/garyjia/medical-claims/internal/application/workflow"
	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/garyjia/medical-claims/internal/domain/entity"
)

const testSigningKey = "test-signing-key-with-enough-bytes"

type mockEngine struct {
	created     workflow.CreateDraftInput
	createActor string
	patch       workflow.DraftPatch
	patchVer    *int64
	deleted     string
	deleteVer   *int64
	transition  workflow.TransitionRequest
	roles       []string
	err         error
}

func (m *mockEngine) CreateDraft(ctx context.Context, in workflow.CreateDraftInput, actorID string) (*entity.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created, m.createActor = in, actorID
	return &entity.Claim{ClaimID: "Claim-2025-26-00001", EmployeeID: in.EmployeeID, Status: entity.StatusDraft, RowVersion: 1}, nil
}

func (m *mockEngine) UpdateDraft(ctx context.Context, claimID string, patch workflow.DraftPatch, actorID string, expectedVersion *int64) (*entity.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.patch, m.patchVer = patch, expectedVersion
	return &entity.Claim{ClaimID: claimID, Status: entity.StatusDraft, RowVersion: 2}, nil
}

func (m *mockEngine) DeleteDraft(ctx context.Context, claimID string, expectedVersion *int64) error {
	if m.err != nil {
		return m.err
	}
	m.deleted, m.deleteVer = claimID, expectedVersion
	return nil
}

func (m *mockEngine) Transition(ctx context.Context, req workflow.TransitionRequest) (*entity.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.transition = req
	return &entity.Claim{ClaimID: req.ClaimID, Status: req.To, RowVersion: 3}, nil
}

func (m *mockEngine) AvailableTransitions(ctx context.Context, claimID string, roles []string) ([]entity.ClaimStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.roles = roles
	return []entity.ClaimStatus{entity.StatusUnderHospitalReview}, nil
}

type mockQueries struct {
	query    service.SearchQuery
	token    string
	fifo     entity.ClaimStatus
	fifoTake int
	items    []*entity.Claim
	err      error
}

func (m *mockQueries) Get(ctx context.Context, claimID string) (*entity.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &entity.Claim{ClaimID: claimID, Status: entity.StatusDraft}, nil
}

func (m *mockQueries) Search(ctx context.Context, q service.SearchQuery) (*service.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.query = q
	m.token = port.BearerTokenFromContext(ctx)
	return &service.SearchResult{Total: len(m.items), Items: m.items}, nil
}

func (m *mockQueries) ListEvents(ctx context.Context, claimID string) ([]*entity.ClaimEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*entity.ClaimEvent{{ClaimID: claimID, FromStatus: entity.StatusDraft, ToStatus: entity.StatusDraft}}, nil
}

func (m *mockQueries) ListFIFO(ctx context.Context, status entity.ClaimStatus, limit int) ([]*entity.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.fifo, m.fifoTake = status, limit
	return m.items, nil
}

type mockRegister struct {
	claims []*entity.Claim
}

func (m *mockRegister) Write(w io.Writer, claims []*entity.Claim, generatedAt time.Time) error {
	m.claims = claims
	_, err := w.Write([]byte("PK"))
	return err
}

type apiFixture struct {
	engine   *mockEngine
	queries  *mockQueries
	register *mockRegister
	health   error
	server   *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{engine: &mockEngine{}, queries: &mockQueries{}, register: &mockRegister{}}

	cfg := DefaultServerConfig()
	cfg.Auth = AuthConfig{SigningKey: testSigningKey, Issuer: "claims-issuer", Audience: "claims-api"}
	cfg.Version = "test"
	f.server = NewServer(cfg, Deps{
		Engine:   f.engine,
		Queries:  f.queries,
		Register: f.register,
		Health:   func(ctx context.Context) error { return f.health },
	}, zap.NewNop())
	return f
}

func signToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = "claims-issuer"
	}
	if _, ok := claims["aud"]; !ok {
		claims["aud"] = "claims-api"
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func tokenFor(t *testing.T, sub string, roles ...string) string {
	r := make([]interface{}, len(roles))
	for i, v := range roles {
		r[i] = v
	}
	return signToken(t, testSigningKey, jwt.MapClaims{"sub": sub, "roles": r})
}

func (f *apiFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *ErrorBody {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	f.health = errors.New("database is locked")
	w = f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"unhealthy"`)
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong key", signToken(t, "another-key-entirely-of-some-length", jwt.MapClaims{"sub": "u1"})},
		{"wrong audience", signToken(t, testSigningKey, jwt.MapClaims{"sub": "u1", "aud": "other"})},
		{"expired", signToken(t, testSigningKey, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodGet, "/api/claims/Claim-2025-26-00001", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Unauthorized", decodeError(t, w).Code)
		})
	}
}

func TestWhoAmI_ReadsRoleClaimVariants(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, testSigningKey, jwt.MapClaims{
		"nameid":      "emp-7",
		"unique_name": "Ayesha",
		"role":        "SMB.Decide",
		roleClaimURI:  []interface{}{"Hospital.Review", "SMB.Decide"},
	})

	w := f.do(http.MethodGet, "/whoami", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp WhoAmIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "emp-7", resp.Sub)
	assert.Equal(t, "Ayesha", resp.Name)
	assert.ElementsMatch(t, []string{"SMB.Decide", "Hospital.Review"}, resp.Roles)
}

func TestWhoAmI_DefaultsActorToSystem(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/whoami", signToken(t, testSigningKey, jwt.MapClaims{}), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sub":"system"`)
	assert.Contains(t, w.Body.String(), `"roles":[]`)
}

func TestRoleGuards(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		roles  []string
		want   int
	}{
		{"reader cannot create", http.MethodPost, "/api/claims", []string{entity.RoleMedicalRead}, http.StatusForbidden},
		{"no role cannot read", http.MethodGet, "/api/claims/C1", nil, http.StatusForbidden},
		{"hospital reviewer can read", http.MethodGet, "/api/claims/C1", []string{entity.RoleHospitalReview}, http.StatusOK},
		{"admin can delete", http.MethodDelete, "/api/claims/C1", []string{entity.RoleMedicalAdmin}, http.StatusNoContent},
		{"reader cannot approve", http.MethodPost, "/api/claims/C1/approve", []string{entity.RoleSMBDecide}, http.StatusForbidden},
		{"reader can start hospital review", http.MethodPost, "/api/claims/C1/hospital-review", []string{entity.RoleHospitalReview}, http.StatusOK},
		{"generic transition needs only a token", http.MethodPost, "/api/claims/C1/transition", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body interface{}
			if tt.path == "/api/claims/C1/transition" {
				body = TransitionBody{ToStatus: entity.StatusSubmitted}
			}
			w := f.do(tt.method, tt.path, tokenFor(t, "u1", tt.roles...), body)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, string(apperr.CodeForbidden), decodeError(t, w).Code)
			}
		})
	}
}

func TestCreateClaim(t *testing.T) {
	f := newAPIFixture(t)
	body := map[string]interface{}{
		"employeeId":    "E-100",
		"claimType":     "Outpatient",
		"claimDateUtc":  "2025-08-01T00:00:00Z",
		"amountClaimed": "1500.50",
		"hospitalCode":  "H01",
	}

	w := f.do(http.MethodPost, "/api/claims", tokenFor(t, "writer-1", entity.RoleMedicalWrite), body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/claims/Claim-2025-26-00001", w.Header().Get("Location"))

	assert.Equal(t, "writer-1", f.engine.createActor)
	assert.Equal(t, "E-100", f.engine.created.EmployeeID)
	assert.Equal(t, entity.ClaimTypeOutpatient, f.engine.created.ClaimType)
	assert.True(t, f.engine.created.AmountClaimed.Equal(decimal.RequireFromString("1500.50")))
	require.NotNil(t, f.engine.created.HospitalCode)
	assert.Equal(t, "H01", *f.engine.created.HospitalCode)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestCreateClaim_MalformedBody(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/claims", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1", entity.RoleMedicalWrite))
	w := httptest.NewRecorder()

	f.server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decodeError(t, w)
	assert.Equal(t, string(apperr.CodeValidation), errBody.Code)
	assert.Contains(t, errBody.Errors, "body")
}

func TestErrorEnvelope_CarriesFieldsAndTraceID(t *testing.T) {
	f := newAPIFixture(t)
	verr := apperr.Validation("amountClaimed", "AmountClaimed cannot be negative.")
	f.engine.err = verr

	req := httptest.NewRequest(http.MethodPost, "/api/claims", bytes.NewBufferString(`{"amountClaimed":"-1"}`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1", entity.RoleMedicalWrite))
	req.Header.Set(headerRequestID, "trace-abc")
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "trace-abc", w.Header().Get(headerRequestID))
	errBody := decodeError(t, w)
	assert.Equal(t, "trace-abc", errBody.TraceID)
	assert.Equal(t, []string{"AmountClaimed cannot be negative."}, errBody.Errors["amountClaimed"])
}

func TestErrorEnvelope_StatusPerCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{apperr.NotFound("Claim", "C1"), http.StatusNotFound, "NotFound"},
		{apperr.New(apperr.CodeConflict, "stale"), http.StatusConflict, "Conflict"},
		{apperr.New(apperr.CodeConcurrency, "busy"), http.StatusConflict, "ConcurrencyError"},
		{apperr.New(apperr.CodeInvalidTransition, "no"), http.StatusBadRequest, "InvalidTransition"},
		{errors.New("disk I/O error"), http.StatusInternalServerError, "ServerError"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newAPIFixture(t)
			f.queries.err = tt.err

			w := f.do(http.MethodGet, "/api/claims/C1", tokenFor(t, "u1", entity.RoleMedicalRead), nil)
			assert.Equal(t, tt.want, w.Code)
			errBody := decodeError(t, w)
			assert.Equal(t, tt.code, errBody.Code)
			assert.NotContains(t, errBody.Message, "disk")
		})
	}
}

func TestUpdateClaim(t *testing.T) {
	f := newAPIFixture(t)
	body := map[string]interface{}{"amountClaimed": "900", "rowVersion": 4}

	w := f.do(http.MethodPut, "/api/claims/C1", tokenFor(t, "u1", entity.RoleMedicalWrite), body)
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, f.engine.patch.AmountClaimed)
	assert.True(t, f.engine.patch.AmountClaimed.Equal(decimal.NewFromInt(900)))
	assert.Nil(t, f.engine.patch.AmountApproved)
	require.NotNil(t, f.engine.patchVer)
	assert.Equal(t, int64(4), *f.engine.patchVer)
}

func TestDeleteClaim_RowVersion(t *testing.T) {
	f := newAPIFixture(t)
	token := tokenFor(t, "u1", entity.RoleMedicalWrite)

	w := f.do(http.MethodDelete, "/api/claims/C1?rowVersion=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.engine.deleted)

	w = f.do(http.MethodDelete, "/api/claims/C1?rowVersion=3", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "C1", f.engine.deleted)
	require.NotNil(t, f.engine.deleteVer)
	assert.Equal(t, int64(3), *f.engine.deleteVer)

	w = f.do(http.MethodDelete, "/api/claims/C2", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, f.engine.deleteVer)
}

func TestActions_TargetAndDefaults(t *testing.T) {
	writer := []string{entity.RoleMedicalWrite}
	amount := decimal.NewFromInt(750)
	remarks := "checked"

	tests := []struct {
		name        string
		path        string
		body        *ActionBody
		wantTo      entity.ClaimStatus
		wantRemarks *string
		wantAmount  bool
	}{
		{"submit defaults remarks", "submit", nil, entity.StatusSubmitted, strPtr("Submitted"), false},
		{"submit keeps caller remarks", "submit", &ActionBody{Remarks: &remarks}, entity.StatusSubmitted, &remarks, false},
		{"hospital verified goes to smb review", "hospital-verified", nil, entity.StatusUnderSMBReview, nil, false},
		{"smb", "smb", nil, entity.StatusUnderSMBReview, nil, false},
		{"approve carries amount", "approve", &ActionBody{AmountApproved: &amount}, entity.StatusApproved, strPtr("Approved"), true},
		{"reject drops amount", "reject", &ActionBody{AmountApproved: &amount}, entity.StatusRejected, nil, false},
		{"return", "return", nil, entity.StatusReturned, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			var body interface{}
			if tt.body != nil {
				body = tt.body
			}

			w := f.do(http.MethodPost, "/api/claims/C9/"+tt.path, tokenFor(t, "u1", writer...), body)
			require.Equal(t, http.StatusOK, w.Code)

			req := f.engine.transition
			assert.Equal(t, "C9", req.ClaimID)
			assert.Equal(t, tt.wantTo, req.To)
			assert.Equal(t, "u1", req.ActorID)
			assert.Equal(t, writer, req.Roles)
			if tt.wantRemarks == nil {
				assert.Nil(t, req.Remarks)
			} else {
				require.NotNil(t, req.Remarks)
				assert.Equal(t, *tt.wantRemarks, *req.Remarks)
			}
			if tt.wantAmount {
				require.NotNil(t, req.AmountApproved)
				assert.True(t, req.AmountApproved.Equal(amount))
			} else {
				assert.Nil(t, req.AmountApproved)
			}
		})
	}
}

func TestTransition_Generic(t *testing.T) {
	f := newAPIFixture(t)
	token := tokenFor(t, "u1", entity.RoleSMBDecide)
	version := int64(6)

	w := f.do(http.MethodPost, "/api/claims/C1/transition", token, TransitionBody{ToStatus: "Closed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.engine.transition.ClaimID)

	w = f.do(http.MethodPost, "/api/claims/C1/transition", token, TransitionBody{ToStatus: entity.StatusRejected, RowVersion: &version})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StatusRejected, f.engine.transition.To)
	require.NotNil(t, f.engine.transition.ExpectedVersion)
	assert.Equal(t, int64(6), *f.engine.transition.ExpectedVersion)
	assert.Equal(t, []string{entity.RoleSMBDecide}, f.engine.transition.Roles)
}

func TestAvailableTransitions(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/claims/C1/transitions", tokenFor(t, "u1", entity.RoleHospitalReview), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{entity.RoleHospitalReview}, f.engine.roles)
	assert.Contains(t, w.Body.String(), `"targets":["UnderHospitalReview"]`)
}

func TestSearch_ForwardsFilterAndToken(t *testing.T) {
	f := newAPIFixture(t)
	f.queries.items = []*entity.Claim{{ClaimID: "C1"}, {ClaimID: "C2"}}
	token := tokenFor(t, "u1", entity.RoleMedicalRead)
	status := entity.StatusSubmitted

	w := f.do(http.MethodPost, "/api/claims/search", token, SearchRequest{CNIC: "35202-1234567-1", Status: &status, Page: 2, PageSize: 10})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "35202-1234567-1", f.queries.query.CNIC)
	assert.Equal(t, 2, f.queries.query.Page)
	require.NotNil(t, f.queries.query.Status)
	assert.Equal(t, status, *f.queries.query.Status)
	assert.Equal(t, token, f.queries.token)
	assert.Contains(t, w.Body.String(), `"total":2`)
}

func TestExportSearch_WritesWorkbook(t *testing.T) {
	f := newAPIFixture(t)
	f.queries.items = []*entity.Claim{{ClaimID: "C1"}}

	w := f.do(http.MethodPost, "/api/claims/search/export", tokenFor(t, "u1", entity.RoleMedicalRead), SearchRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "claims-register-")
	assert.Equal(t, "PK", w.Body.String())
	assert.Len(t, f.register.claims, 1)
}

func TestListFIFO(t *testing.T) {
	f := newAPIFixture(t)
	token := tokenFor(t, "u1", entity.RoleMedicalRead)

	w := f.do(http.MethodGet, "/api/claims/fifo/Submitted?take=25", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StatusSubmitted, f.queries.fifo)
	assert.Equal(t, 25, f.queries.fifoTake)

	w = f.do(http.MethodGet, "/api/claims/fifo/Submitted?take=many", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEvents(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/claims/C1/events", tokenFor(t, "u1", entity.RoleMedicalRead), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"claimId":"C1"`)
}

func strPtr(s string) *string { return &s }
