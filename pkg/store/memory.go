package store

import (
	"context"
	"sync"
	"time"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// MemoryStore is an in-process Store for tests and for hosts running without
// a durable backend. Semantics match RedisStore, including version purging
// and lazy counter expiry; durability is process-lifetime only.
type MemoryStore struct {
	mu       sync.Mutex
	actions  map[string]map[string]bool // scenarioID -> record field -> fired
	versions map[string]string          // scenarioID -> version stamp
	counters map[string]*Counter
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions:  make(map[string]map[string]bool),
		versions: make(map[string]string),
		counters: make(map[string]*Counter),
	}
}

// ensureVersion purges a scenario's state when its version stamp changed.
// Caller holds the lock.
func (s *MemoryStore) ensureVersion(sc *scenario.Scenario) {
	stored, ok := s.versions[sc.ID]
	if ok && stored == sc.Version {
		return
	}
	if ok {
		delete(s.actions, sc.ID)
		delete(s.counters, sc.ID)
	}
	s.versions[sc.ID] = sc.Version
}

// Actioned implements Store.
func (s *MemoryStore) Actioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string, kind scenario.ActionKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureVersion(sc)
	return s.actions[sc.ID][recordField(playerID, trackID, kind)], nil
}

// MarkActioned implements Store.
func (s *MemoryStore) MarkActioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string, kind scenario.ActionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureVersion(sc)
	if s.actions[sc.ID] == nil {
		s.actions[sc.ID] = make(map[string]bool)
	}
	s.actions[sc.ID][recordField(playerID, trackID, kind)] = true
	return nil
}

// AnyActioned implements Store.
func (s *MemoryStore) AnyActioned(ctx context.Context, sc *scenario.Scenario) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureVersion(sc)
	return len(s.actions[sc.ID]) > 0, nil
}

// Counter implements Store.
func (s *MemoryStore) Counter(ctx context.Context, sc *scenario.Scenario, now time.Time) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counterLocked(sc, now), nil
}

func (s *MemoryStore) counterLocked(sc *scenario.Scenario, now time.Time) *Counter {
	s.ensureVersion(sc)

	c, ok := s.counters[sc.ID]
	if !ok || c.Version != sc.Version || c.Expired(now) {
		delete(s.counters, sc.ID)
		return &Counter{Version: sc.Version}
	}
	copied := *c
	return &copied
}

// IncrCounter implements Store.
func (s *MemoryStore) IncrCounter(ctx context.Context, sc *scenario.Scenario, now time.Time, span time.Duration) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counterLocked(sc, now)
	if c.TimesFired == 0 && span > 0 {
		c.ExpiresAt = now.Add(span)
	}
	c.TimesFired++
	c.Version = sc.Version

	stored := *c
	s.counters[sc.ID] = &stored
	return c, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, scenarioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.actions, scenarioID)
	delete(s.counters, scenarioID)
	delete(s.versions, scenarioID)
	return nil
}
