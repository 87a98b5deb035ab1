package port

import (
	"context"
	"time"

	"github.com/garyjia/medical-claims/internal/domain/entity"
)

// EmployeeResolver maps a national id or personnel number to an employee id.
// An empty id with a nil error means no match.
type EmployeeResolver interface {
	Resolve(ctx context.Context, cnic, personnelNo string) (string, error)
}

// SequenceAllocator hands out the next value of a named series
type SequenceAllocator interface {
	Allocate(ctx context.Context, series string) (int64, error)
}

// ClaimIDGenerator produces the next claim id
type ClaimIDGenerator interface {
	NextClaimID(ctx context.Context) (string, error)
}

// MetricsRecorder records engine metrics
type MetricsRecorder interface {
	ObserveTransition(from, to entity.ClaimStatus, duration time.Duration)
	IncOperationFailure(operation, code string)
	IncDraftCreated()
	IncSequenceRetry(series string)
}

// NoopMetrics discards all observations
type NoopMetrics struct{}

func (NoopMetrics) ObserveTransition(entity.ClaimStatus, entity.ClaimStatus, time.Duration) {}
func (NoopMetrics) IncOperationFailure(string, string)                                     {}
func (NoopMetrics) IncDraftCreated()                                                       {}
func (NoopMetrics) IncSequenceRetry(string)                                                {}

type bearerTokenKey struct{}

// ContextWithBearerToken stores the caller's raw bearer token for outbound calls
func ContextWithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerTokenFromContext returns the caller's bearer token, if any
func BearerTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}
