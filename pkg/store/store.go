// Package store persists action records and global counters for scenarios.
// Records are keyed per (scenario, player, track, action kind) and are
// invalidated as a whole when the scenario's version stamp changes.
package store

import (
	"context"
	"time"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// Counter is the durable per-scenario fire count used by cross-track
// throttling. A zero ExpiresAt means the counter never expires.
type Counter struct {
	TimesFired int       `json:"timesFired"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Version    string    `json:"version"`
}

// Expired reports whether the counter's window has elapsed at the given time.
func (c *Counter) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Store is the durable key-value collaborator scoped to one device/session.
// Every read validates the stored version stamp against the scenario's
// current one; a mismatch purges that scenario's state first, so a bumped
// ModifiedAt invalidates all previously persisted records and counters.
//
// Implementations are not required to survive backend outages: callers treat
// read errors as "not yet actioned" so firing degrades to best-effort rather
// than silently stopping.
type Store interface {
	// Actioned reports whether the (scenario, player, track, kind) tuple has
	// already fired.
	Actioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string, kind scenario.ActionKind) (bool, error)

	// MarkActioned records the tuple as fired. Records are never mutated
	// afterwards; they disappear only via version change or Reset.
	MarkActioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string, kind scenario.ActionKind) error

	// AnyActioned reports whether any record exists anywhere for the
	// scenario, across all players and tracks.
	AnyActioned(ctx context.Context, sc *scenario.Scenario) (bool, error)

	// Counter returns the scenario's global counter, lazily purging it when
	// its expiration has passed. A missing counter returns a zero Counter.
	Counter(ctx context.Context, sc *scenario.Scenario, now time.Time) (*Counter, error)

	// IncrCounter increments the global counter and returns the new value.
	// The expiration is computed once from span when the counter is created
	// (span <= 0 means persistent) and left untouched until it elapses.
	IncrCounter(ctx context.Context, sc *scenario.Scenario, now time.Time, span time.Duration) (*Counter, error)

	// Reset clears all records and the counter for a scenario ID.
	Reset(ctx context.Context, scenarioID string) error
}

// recordField builds the per-tuple field name shared by implementations.
func recordField(playerID, trackID string, kind scenario.ActionKind) string {
	return playerID + "|" + trackID + "|" + string(kind)
}
