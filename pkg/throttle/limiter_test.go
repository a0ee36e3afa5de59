package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/wavemark/playback-triggers/pkg/scenario"
	"github.com/wavemark/playback-triggers/pkg/store"
)

func advancedScenario(id string, adv scenario.AdvancedRules) *scenario.Scenario {
	return &scenario.Scenario{ID: id, Version: "v1", Advanced: adv}
}

func TestOccur_NoAdvancedRules(t *testing.T) {
	l := NewLimiter(store.NewMemoryStore())
	sc := advancedScenario("plain", scenario.AdvancedRules{})

	for i := 0; i < 5; i++ {
		if !l.Occur(context.Background(), sc) {
			t.Fatalf("occurrence %d: expected unthrottled scenario to always fire", i+1)
		}
	}
}

func TestOccur_ApplyAfter(t *testing.T) {
	l := NewLimiter(store.NewMemoryStore())
	sc := advancedScenario("after-2", scenario.AdvancedRules{
		ApplyAfter: 2,
		TimeSpan:   scenario.SpanPersistent,
	})

	// apply_after 2: fires for the first two occurrences, suppressed after.
	for i, want := range []bool{true, true, false, false, false} {
		if got := l.Occur(context.Background(), sc); got != want {
			t.Errorf("occurrence %d: Occur() = %v, expected %v", i+1, got, want)
		}
	}
}

func TestOccur_ApplyMaxTimes(t *testing.T) {
	l := NewLimiter(store.NewMemoryStore())
	sc := advancedScenario("max-2", scenario.AdvancedRules{
		ApplyMaxTimes: 2,
		TimeSpan:      scenario.SpanPersistent,
	})

	// apply_max_times 2: suppressed for the first two occurrences, fires after.
	for i, want := range []bool{false, false, true, true} {
		if got := l.Occur(context.Background(), sc); got != want {
			t.Errorf("occurrence %d: Occur() = %v, expected %v", i+1, got, want)
		}
	}
}

func TestOccur_WindowExpiryResets(t *testing.T) {
	l := NewLimiter(store.NewMemoryStore())
	sc := advancedScenario("after-1-hourly", scenario.AdvancedRules{
		ApplyAfter: 1,
		TimeSpan:   scenario.SpanHour,
	})

	now := time.Now()
	l.SetClock(func() time.Time { return now })

	if !l.Occur(context.Background(), sc) {
		t.Fatal("occurrence 1: expected fire")
	}
	if l.Occur(context.Background(), sc) {
		t.Fatal("occurrence 2: expected suppression")
	}

	// Once the window elapses the counter restarts.
	now = now.Add(2 * time.Hour)
	if !l.Occur(context.Background(), sc) {
		t.Fatal("expected fire after the hourly window expired")
	}
}

func TestSuppressed_PeeksWithoutCounting(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(store.NewMemoryStore())
	sc := advancedScenario("after-1", scenario.AdvancedRules{
		ApplyAfter: 1,
		TimeSpan:   scenario.SpanPersistent,
	})

	if l.Suppressed(ctx, sc) {
		t.Error("expected first occurrence not to be suppressed")
	}
	// Peeking must not consume the occurrence.
	if !l.Occur(ctx, sc) {
		t.Error("expected fire after peeking")
	}
	if !l.Suppressed(ctx, sc) {
		t.Error("expected next occurrence to read as suppressed")
	}
}
