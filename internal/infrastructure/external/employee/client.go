package employee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"go.uber.org/zap"
)

// Client resolves employee references against the employee service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type lookupResponse struct {
	EmployeeID string `json:"employeeId"`
}

// NewClient creates an employee service client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Resolve looks up the employee id. A non-2xx answer is no match.
func (c *Client) Resolve(ctx context.Context, cnic, personnelNo string) (string, error) {
	cnic, personnelNo = strings.TrimSpace(cnic), strings.TrimSpace(personnelNo)
	if cnic == "" && personnelNo == "" {
		return "", nil
	}

	q := url.Values{}
	if cnic != "" {
		q.Set("cnic", cnic)
	}
	if personnelNo != "" {
		q.Set("personnelNo", personnelNo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/employees/lookup?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := port.BearerTokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("employee lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Employee lookup returned no match", zap.Int("status", resp.StatusCode))
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read lookup response: %w", err)
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse lookup response: %w", err)
	}
	return strings.TrimSpace(out.EmployeeID), nil
}

var _ port.EmployeeResolver = (*Client)(nil)
