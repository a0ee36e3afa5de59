package engine

import (
	"context"
	"testing"

	"github.com/wavemark/playback-triggers/pkg/dispatch"
	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/resolve"
	"github.com/wavemark/playback-triggers/pkg/scenario"
	"github.com/wavemark/playback-triggers/pkg/store"
	"github.com/wavemark/playback-triggers/pkg/throttle"
)

type recordingNavigator struct {
	scrolls   []string
	redirects []string
}

func (r *recordingNavigator) Redirect(url, target string) { r.redirects = append(r.redirects, url) }
func (r *recordingNavigator) ScrollTo(targetID string)    { r.scrolls = append(r.scrolls, targetID) }

type recordingDownloads struct {
	urls     map[string]string // playerID|trackID -> URL offered by the controls
	restored map[string]string
}

func (r *recordingDownloads) Strip(playerID, trackID string) (string, bool) {
	url, ok := r.urls[playerID+"|"+trackID]
	return url, ok
}

func (r *recordingDownloads) Restore(playerID, trackID, url string) {
	r.restored[playerID+"|"+trackID] = url
}

type testHarness struct {
	engine    *Engine
	surface   *playback.Surface
	store     store.Store
	navigator *recordingNavigator
	downloads *recordingDownloads
	player    *playback.FakePlayer
}

// newHarness builds an engine over a memory store with one registered player
// and the given scenarios, using scroll calls as the observable effect.
func newHarness(scenarios ...*scenario.Scenario) *testHarness {
	s := store.NewMemoryStore()
	nav := &recordingNavigator{}
	dls := &recordingDownloads{urls: make(map[string]string), restored: make(map[string]string)}
	surface := playback.NewSurface()

	p := playback.NewFakePlayer("p1")
	p.SetTrack(playback.Track{ID: "t1"})
	p.SetDuration(120)
	surface.Add(p)

	limiter := throttle.NewLimiter(s)
	dispatcher := dispatch.New(dispatch.Dependencies{
		Store:     s,
		Limiter:   limiter,
		Navigator: nav,
		Downloads: dls,
	})

	e := New(Config{
		Scenarios:  scenarios,
		Surface:    surface,
		Store:      s,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Viewer:     resolve.Viewer{},
	})
	e.Sync()

	return &testHarness{engine: e, surface: surface, store: s, navigator: nav, downloads: dls, player: p}
}

func scrollScenario(id string, cond scenario.Condition) *scenario.Scenario {
	return &scenario.Scenario{
		ID:        id,
		Version:   "v1",
		Condition: cond,
		Actions: []scenario.Action{
			{Kind: scenario.KindScroll, Scroll: &scenario.ScrollParams{TargetID: "player"}},
		},
		ApplyOn: scenario.ApplyOn{AllPlayers: true},
	}
}

func (h *testHarness) play() {
	h.engine.HandleEvent(context.Background(), playback.Event{
		Type: playback.EventPlay, PlayerID: h.player.ID(),
	})
}

func (h *testHarness) progress(pos float64) {
	h.player.SetPosition(pos)
	h.engine.HandleEvent(context.Background(), playback.Event{
		Type:     playback.EventProgress,
		PlayerID: h.player.ID(),
		Position: pos,
		Duration: h.player.Duration(),
	})
}

func (h *testHarness) switchTrack(id string) {
	h.player.SetTrack(playback.Track{ID: id})
	h.play()
}

func TestPulseFiresOncePerCrossing(t *testing.T) {
	// 50% of a 120s track: threshold at 60s.
	h := newHarness(scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent}))

	h.play()
	h.progress(59.0)
	if len(h.navigator.scrolls) != 0 {
		t.Fatal("fired before the threshold")
	}

	h.progress(60.4)
	if len(h.navigator.scrolls) != 1 {
		t.Fatalf("scrolls = %d after crossing, expected 1", len(h.navigator.scrolls))
	}

	// Further ticks inside the same second, and re-crossings after seeking
	// back, stay latched.
	h.progress(60.9)
	h.progress(58.0)
	h.progress(60.2)
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d after repeated crossings, expected 1", len(h.navigator.scrolls))
	}
}

func TestRequiredLevelRearmsBelowThreshold(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{
		ReachedValue: 50, Unit: scenario.UnitPercent, Required: true,
	}))

	h.play()
	h.progress(61.0)
	if len(h.navigator.scrolls) != 1 {
		t.Fatalf("scrolls = %d, expected 1", len(h.navigator.scrolls))
	}

	// Holding above the threshold does not re-fire.
	h.progress(62.0)
	h.progress(80.0)
	if len(h.navigator.scrolls) != 1 {
		t.Fatalf("scrolls = %d while level held, expected 1", len(h.navigator.scrolls))
	}

	// Dropping below re-arms; crossing again re-fires.
	h.progress(30.0)
	h.progress(61.0)
	if len(h.navigator.scrolls) != 2 {
		t.Errorf("scrolls = %d after re-arm, expected 2", len(h.navigator.scrolls))
	}
}

func TestFireVetoes(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent}))
	h.play()

	// Unknown duration: percent threshold cannot be computed.
	h.player.SetDuration(0)
	h.engine.HandleEvent(context.Background(), playback.Event{
		Type: playback.EventProgress, PlayerID: "p1", Position: 60.5, Duration: 0,
	})
	if len(h.navigator.scrolls) != 0 {
		t.Error("fired with unknown duration")
	}
	h.player.SetDuration(120)

	// Position zero is a spurious tick even if the threshold were zero.
	h.progress(0)
	if len(h.navigator.scrolls) != 0 {
		t.Error("fired on position-zero tick")
	}

	// Paused players do not fire.
	h.player.Pause()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 0 {
		t.Error("fired while paused")
	}
	h.player.Resume()

	h.progress(60.5)
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d after vetoes cleared, expected 1", len(h.navigator.scrolls))
	}
}

func TestSecondsThresholdWaitsForDuration(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{ReachedValue: 45, Unit: scenario.UnitSeconds}))
	h.play()

	// Nothing fires while the media is still loading, seconds thresholds
	// included: the end-of-track decision needs a real duration.
	h.player.SetDuration(0)
	h.engine.HandleEvent(context.Background(), playback.Event{
		Type: playback.EventProgress, PlayerID: "p1", Position: 45.2, Duration: 0,
	})
	if len(h.navigator.scrolls) != 0 {
		t.Fatalf("scrolls = %d with unknown duration, expected 0", len(h.navigator.scrolls))
	}

	// Once the duration arrives the same crossing fires normally.
	h.player.SetDuration(120)
	h.progress(45.4)
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d after duration became known, expected 1", len(h.navigator.scrolls))
	}
}

func TestTrackSwitchResetsEdgeDetectors(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent}))

	h.play()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 1 {
		t.Fatalf("scrolls = %d on first track, expected 1", len(h.navigator.scrolls))
	}

	// A new track starts from scratch.
	h.switchTrack("t2")
	h.progress(60.5)
	if len(h.navigator.scrolls) != 2 {
		t.Errorf("scrolls = %d after track switch, expected 2", len(h.navigator.scrolls))
	}
}

func TestOncePerTrackSessionMemory(t *testing.T) {
	sc := scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent})
	sc.Once = scenario.OnceRules{PerTrackUntilRefresh: true}
	h := newHarness(sc)

	h.play()
	h.progress(60.5)
	h.switchTrack("t2")
	h.progress(60.5)
	if len(h.navigator.scrolls) != 2 {
		t.Fatalf("scrolls = %d across two tracks, expected 2", len(h.navigator.scrolls))
	}

	// Returning to the first track: the session already fired for it.
	h.switchTrack("t1")
	h.progress(60.5)
	if len(h.navigator.scrolls) != 2 {
		t.Errorf("scrolls = %d after revisiting a fired track, expected 2", len(h.navigator.scrolls))
	}
}

func TestOncePerPlayerSessionMemory(t *testing.T) {
	sc := scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent})
	sc.Once = scenario.OnceRules{PerPlayerUntilRefresh: true}
	h := newHarness(sc)

	h.play()
	h.progress(60.5)
	h.switchTrack("t2")
	h.progress(60.5)
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d, expected 1 fire per player for the whole session", len(h.navigator.scrolls))
	}
}

func TestAnySubmittedAnywhereVeto(t *testing.T) {
	sc := scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent})
	sc.Once = scenario.OnceRules{AnySubmittedAnywhere: true}
	h := newHarness(sc)

	// A record from any player/track silences the scenario everywhere.
	if err := h.store.MarkActioned(context.Background(), sc, "other-player", "other-track", scenario.KindPopup); err != nil {
		t.Fatalf("MarkActioned() error = %v", err)
	}

	h.play()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 0 {
		t.Errorf("scrolls = %d, expected global submission to veto the fire", len(h.navigator.scrolls))
	}
}

func TestThrottleAcrossTracks(t *testing.T) {
	sc := scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent})
	sc.Advanced = scenario.AdvancedRules{ApplyMaxTimes: 1, TimeSpan: scenario.SpanPersistent}
	h := newHarness(sc)

	// apply_max_times 1: first occurrence suppressed, second fires, and the
	// counter spans tracks.
	h.play()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 0 {
		t.Fatalf("scrolls = %d on first occurrence, expected suppression", len(h.navigator.scrolls))
	}

	h.switchTrack("t2")
	h.progress(60.5)
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d on second occurrence, expected 1", len(h.navigator.scrolls))
	}
}

func TestDownloadClickCondition(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{DownloadClicked: true}))
	h.play()

	// Progress never fires an event-based scenario.
	h.progress(60.5)
	if len(h.navigator.scrolls) != 0 {
		t.Fatal("event-based scenario fired on a progress tick")
	}

	h.engine.HandleEvent(context.Background(), playback.Event{
		Type: playback.EventDownloadClick, PlayerID: "p1", TrackID: "t1",
	})
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d after download click, expected 1", len(h.navigator.scrolls))
	}
}

func TestBackgroundedPlayerIsTornDown(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent}))

	other := playback.NewFakePlayer("p2")
	other.SetTrack(playback.Track{ID: "t9"})
	other.SetDuration(120)
	h.surface.Add(other)
	h.engine.Sync()

	// p2 owns audio; p1 is backgrounded and must not evaluate.
	h.surface.SetActive("p2")
	h.play()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 0 {
		t.Errorf("scrolls = %d from a backgrounded player, expected 0", len(h.navigator.scrolls))
	}
}

func TestSyncIsGuarded(t *testing.T) {
	h := newHarness(scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent}))

	before := h.engine.Stats().Bindings
	h.engine.Sync()
	h.engine.Sync()
	if got := h.engine.Stats().Bindings; got != before {
		t.Errorf("Bindings = %d after re-sync, expected %d", got, before)
	}

	// A removed player loses its bindings on the next sync.
	h.surface.Remove("p1")
	h.engine.Sync()
	if got := h.engine.Stats().Bindings; got != 0 {
		t.Errorf("Bindings = %d after player removal, expected 0", got)
	}
}

func TestSetViewerReconcilesAudienceBindings(t *testing.T) {
	sc := scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent})
	sc.ApplyFor = scenario.ApplyFor{Audience: scenario.AudienceLoggedOut}
	h := newHarness(sc)

	if got := h.engine.Stats().Bindings; got != 1 {
		t.Fatalf("Bindings = %d for a logged-out viewer, expected 1", got)
	}

	// Logging in drops the binding; the scenario stops evaluating entirely.
	h.engine.SetViewer(resolve.Viewer{LoggedIn: true})
	if got := h.engine.Stats().Bindings; got != 0 {
		t.Fatalf("Bindings = %d after login, expected 0", got)
	}
	h.play()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 0 {
		t.Error("logged-out scenario fired for a logged-in viewer")
	}

	// Logging back out re-binds and evaluation resumes.
	h.engine.SetViewer(resolve.Viewer{})
	h.play()
	h.progress(60.5)
	if len(h.navigator.scrolls) != 1 {
		t.Errorf("scrolls = %d after logout, expected 1", len(h.navigator.scrolls))
	}
}

func TestThrottledDownloadGateRestoredOnPlay(t *testing.T) {
	sc := &scenario.Scenario{
		ID: "s1", Version: "v1",
		Condition: scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent},
		Actions: []scenario.Action{
			{Kind: scenario.KindDownloadGate, DownloadGate: &scenario.DownloadGateParams{}},
		},
		ApplyOn:  scenario.ApplyOn{AllPlayers: true},
		Advanced: scenario.AdvancedRules{ApplyAfter: 1, TimeSpan: scenario.SpanPersistent},
	}
	h := newHarness(sc)
	h.downloads.urls["p1|t1"] = "https://example.com/stems.zip"

	// apply_after 1: the first occurrence fires and strips the URL.
	h.play()
	h.progress(60.5)
	if len(h.downloads.restored) != 0 {
		t.Fatalf("restored = %v after the gating fire, expected none", h.downloads.restored)
	}

	// The next play finds the scenario throttled out; a popup that can no
	// longer fire must not keep the URL stripped.
	h.play()
	if got := h.downloads.restored["p1|t1"]; got != "https://example.com/stems.zip" {
		t.Errorf("restored URL = %q, expected the original back once the scenario is throttled", got)
	}
}

func TestStatsCountsFiresAndVetoes(t *testing.T) {
	sc := scrollScenario("s1", scenario.Condition{ReachedValue: 50, Unit: scenario.UnitPercent})
	sc.Once = scenario.OnceRules{PerTrackUntilRefresh: true}
	h := newHarness(sc)

	h.play()
	h.progress(60.5)
	h.switchTrack("t2")
	h.switchTrack("t1")
	h.progress(60.5)

	stats := h.engine.Stats()
	if stats.Fires != 1 {
		t.Errorf("Fires = %d, expected 1", stats.Fires)
	}
	if stats.Vetoes != 1 {
		t.Errorf("Vetoes = %d, expected 1", stats.Vetoes)
	}
}
