package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/domain/entity"
	"github.com/garyjia/medical-claims/internal/domain/event"
)

// memStore backs the claim and event mocks so the tx mock can roll both back together
type memStore struct {
	claims map[string]*entity.Claim
	events []*entity.ClaimEvent
}

func newMemStore() *memStore {
	return &memStore{claims: make(map[string]*entity.Claim)}
}

func (s *memStore) snapshot() (map[string]*entity.Claim, []*entity.ClaimEvent) {
	claims := make(map[string]*entity.Claim, len(s.claims))
	for k, v := range s.claims {
		claims[k] = v.Clone()
	}
	events := make([]*entity.ClaimEvent, len(s.events))
	copy(events, s.events)
	return claims, events
}

func (s *memStore) eventsFor(claimID string) []*entity.ClaimEvent {
	var out []*entity.ClaimEvent
	for _, e := range s.events {
		if e.ClaimID == claimID {
			out = append(out, e)
		}
	}
	return out
}

type mockClaimRepo struct {
	store     *memStore
	updateErr error
}

func (m *mockClaimRepo) Create(ctx context.Context, claim *entity.Claim) error {
	if _, exists := m.store.claims[claim.ClaimID]; exists {
		return port.ErrSerialization
	}
	m.store.claims[claim.ClaimID] = claim.Clone()
	return nil
}

func (m *mockClaimRepo) GetByID(ctx context.Context, claimID string) (*entity.Claim, error) {
	c, ok := m.store.claims[claimID]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

func (m *mockClaimRepo) Update(ctx context.Context, claim *entity.Claim, expectedVersion int64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.store.claims[claim.ClaimID]
	if !ok || stored.RowVersion != expectedVersion {
		return port.ErrVersionConflict
	}
	claim.RowVersion = expectedVersion + 1
	m.store.claims[claim.ClaimID] = claim.Clone()
	return nil
}

func (m *mockClaimRepo) Delete(ctx context.Context, claimID string, expectedVersion *int64) error {
	stored, ok := m.store.claims[claimID]
	if !ok {
		return port.ErrNotFound
	}
	if expectedVersion != nil && stored.RowVersion != *expectedVersion {
		return port.ErrVersionConflict
	}
	delete(m.store.claims, claimID)
	kept := m.store.events[:0]
	for _, e := range m.store.events {
		if e.ClaimID != claimID {
			kept = append(kept, e)
		}
	}
	m.store.events = kept
	return nil
}

func (m *mockClaimRepo) Search(ctx context.Context, filter port.ClaimFilter) ([]*entity.Claim, int, error) {
	return nil, 0, nil
}

func (m *mockClaimRepo) ListFIFO(ctx context.Context, status entity.ClaimStatus, limit int) ([]*entity.Claim, error) {
	var out []*entity.Claim
	for _, c := range m.store.claims {
		if c.Status == status && c.QueueNo != nil {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].QueueNo < *out[j].QueueNo })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockEventRepo struct {
	store     *memStore
	appendErr error
}

func (m *mockEventRepo) Append(ctx context.Context, e *entity.ClaimEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.store.events = append(m.store.events, e)
	return nil
}

func (m *mockEventRepo) ListByClaimID(ctx context.Context, claimID string) ([]*entity.ClaimEvent, error) {
	return m.store.eventsFor(claimID), nil
}

// mockTxManager restores the store on error and retries serialization failures
type mockTxManager struct {
	store *memStore
	runs  int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error, opts ...port.TxOption) error {
	o := port.ApplyTxOptions(opts...)
	var err error
	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		m.runs++
		claims, events := m.store.snapshot()
		err = fn(ctx)
		if err == nil {
			return nil
		}
		m.store.claims, m.store.events = claims, events
		if !errors.Is(err, port.ErrSerialization) {
			return err
		}
	}
	return err
}

// mockAllocator is an in-memory sequence source that can fail the first calls
type mockAllocator struct {
	mu        sync.Mutex
	next      map[string]int64
	failFirst int
	calls     int
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{next: make(map[string]int64)}
}

func (m *mockAllocator) Allocate(ctx context.Context, series string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failFirst {
		return 0, port.ErrSerialization
	}
	if m.next[series] == 0 {
		m.next[series] = 1
	}
	v := m.next[series]
	m.next[series]++
	return v, nil
}

type mockIDGenerator struct {
	alloc *mockAllocator
}

func (m *mockIDGenerator) NextClaimID(ctx context.Context) (string, error) {
	n, err := m.alloc.Allocate(ctx, "ClaimId:2025-26")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Claim-2025-26-%05d", n), nil
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) Handlers(eventType event.Type) []string { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockMetrics struct {
	port.NoopMetrics
	transitions int
	drafts      int
	failures    map[string]int
}

func (m *mockMetrics) ObserveTransition(from, to entity.ClaimStatus, d time.Duration) {
	m.transitions++
}

func (m *mockMetrics) IncDraftCreated() { m.drafts++ }

func (m *mockMetrics) IncOperationFailure(operation, code string) {
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[operation+":"+code]++
}
