// Package throttle enforces cross-track firing limits backed by a durable
// per-scenario global counter, independent of track identity.
package throttle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/scenario"
	"github.com/wavemark/playback-triggers/pkg/store"
)

// Limiter evaluates a scenario's advanced rules against its global counter.
type Limiter struct {
	store store.Store
	now   func() time.Time
}

// NewLimiter creates a limiter on the given store.
func NewLimiter(s store.Store) *Limiter {
	return &Limiter{store: s, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Occur records one occurrence for the scenario and reports whether it may
// fire. Every occurrence that reaches the limiter increments the counter,
// for both policies; the counter's expiration window is fixed at creation
// and lazily purged once it elapses.
//
// applyAfter N: fires through the first N occurrences, suppressed afterward.
// applyMaxTimes N: suppressed for the first N occurrences, fires afterward.
//
// A store failure degrades to "may fire": throttling is best-effort and must
// never silently disable a scenario.
func (l *Limiter) Occur(ctx context.Context, sc *scenario.Scenario) bool {
	if !sc.Advanced.Enabled() {
		return true
	}

	span, _ := sc.Advanced.TimeSpan.Duration()
	c, err := l.store.IncrCounter(ctx, sc, l.now(), span)
	if err != nil {
		logrus.Warnf("throttle: counter unavailable for scenario %s, allowing fire: %v", sc.ID, err)
		return true
	}

	allowed := l.inLimit(sc, c)
	logrus.Debugf("throttle: scenario %s timesFired=%d allowed=%v", sc.ID, c.TimesFired, allowed)
	return allowed
}

// Suppressed peeks at the counter without recording an occurrence: it
// reports whether the scenario's next occurrence would be throttled. The
// engine consults it on play to restore download URLs gated by a scenario
// that can no longer fire.
func (l *Limiter) Suppressed(ctx context.Context, sc *scenario.Scenario) bool {
	if !sc.Advanced.Enabled() {
		return false
	}

	c, err := l.store.Counter(ctx, sc, l.now())
	if err != nil {
		logrus.Warnf("throttle: counter unavailable for scenario %s: %v", sc.ID, err)
		return false
	}
	// Peek as if the next occurrence happened.
	next := *c
	next.TimesFired++
	return !l.inLimit(sc, &next)
}

func (l *Limiter) inLimit(sc *scenario.Scenario, c *store.Counter) bool {
	if sc.Advanced.ApplyAfter > 0 {
		return c.TimesFired <= sc.Advanced.ApplyAfter
	}
	return c.TimesFired > sc.Advanced.ApplyMaxTimes
}
