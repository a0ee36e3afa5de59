// Package engine evaluates playback events against the loaded scenarios.
// It owns the scenario-player bindings, the session-scoped once memory, and
// the veto chain that stands between a threshold crossing and a dispatch.
package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/dispatch"
	"github.com/wavemark/playback-triggers/pkg/metrics"
	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/resolve"
	"github.com/wavemark/playback-triggers/pkg/scenario"
	"github.com/wavemark/playback-triggers/pkg/store"
	"github.com/wavemark/playback-triggers/pkg/throttle"
)

// Veto reasons, as reported in metrics.
const (
	vetoAnySubmitted = "any_submitted"
	vetoOncePerTrack = "once_per_track"
	vetoOncePlayer   = "once_per_player"
	vetoRecorded     = "recorded"
	vetoThrottled    = "throttled"
)

// Config carries the engine's collaborators.
type Config struct {
	Scenarios  []*scenario.Scenario
	Surface    *playback.Surface
	Store      store.Store
	Limiter    *throttle.Limiter
	Dispatcher *dispatch.Dispatcher
	Viewer     resolve.Viewer
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Scenarios int
	Bindings  int
	Fires     int64
	Vetoes    int64
}

// Engine is the trigger evaluator. All event handling is serialized behind a
// single mutex: events arrive from the host's media layer one at a time and
// every handler runs to completion before the next is observed.
type Engine struct {
	mu         sync.Mutex
	scenarios  []*scenario.Scenario
	surface    *playback.Surface
	store      store.Store
	limiter    *throttle.Limiter
	dispatcher *dispatch.Dispatcher
	viewer     resolve.Viewer

	bindings map[string]*binding

	// sessionFired is the until-refresh once memory: per-track and per-player
	// marks that live exactly as long as this engine instance.
	sessionFired map[string]bool

	fires  int64
	vetoes int64
}

// New creates an engine. Call Sync to resolve scenarios against the surface
// before delivering events.
func New(cfg Config) *Engine {
	return &Engine{
		scenarios:    cfg.Scenarios,
		surface:      cfg.Surface,
		store:        cfg.Store,
		limiter:      cfg.Limiter,
		dispatcher:   cfg.Dispatcher,
		viewer:       cfg.Viewer,
		bindings:     make(map[string]*binding),
		sessionFired: make(map[string]bool),
	}
}

// Sync resolves every scenario against the current surface and reconciles
// the binding table with the result: bindings are created for newly
// applicable players and dropped for players no longer in a scenario's
// resolved set, whether they left the surface or the audience/target filters
// stopped matching. Surviving bindings are kept as-is, so re-syncing after a
// player registration never re-attaches or resets anything.
func (e *Engine) Sync() {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved := make(map[string]bool)
	for _, sc := range e.scenarios {
		for _, p := range resolve.Players(sc, e.surface, e.viewer) {
			key := bindingKey(sc.ID, p.ID())
			resolved[key] = true
			if _, exists := e.bindings[key]; exists {
				continue
			}
			e.bindings[key] = newBinding(sc, p.ID())
			logrus.Debugf("engine: bound scenario %s to player %s", sc.ID, p.ID())
		}
	}

	for key, b := range e.bindings {
		if resolved[key] {
			continue
		}
		e.dispatcher.ResetPlayer(b.playerID)
		delete(e.bindings, key)
		logrus.Debugf("engine: unbound scenario %s from player %s", b.scenario.ID, b.playerID)
	}
}

// SetViewer replaces the ambient auth state and re-resolves bindings.
func (e *Engine) SetViewer(v resolve.Viewer) {
	e.mu.Lock()
	e.viewer = v
	e.mu.Unlock()
	e.Sync()
}

// HandleEvent delivers one playback event to every binding of the emitting
// player. Events for unbound players are ignored.
func (e *Engine) HandleEvent(ctx context.Context, evt playback.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.surface.Get(evt.PlayerID)
	if p == nil {
		return
	}

	for _, b := range e.bindings {
		if b.playerID != evt.PlayerID {
			continue
		}
		switch evt.Type {
		case playback.EventPlay:
			e.handlePlay(ctx, b, p)
		case playback.EventProgress:
			e.handleProgress(ctx, b, p, evt)
		case playback.EventPause:
			e.handlePause(b, p)
		case playback.EventEnded:
			e.handleEnded(b, p)
		case playback.EventDownloadClick:
			e.handleDownloadClick(ctx, b, p, evt)
		}
	}
}

// handlePlay moves the binding into the playing state, detects track and
// player switches, and activates trim segments for the new track.
func (e *Engine) handlePlay(ctx context.Context, b *binding, p playback.Player) {
	// A backgrounded player is torn down entirely rather than evaluated in
	// parallel with the active one.
	if !e.surface.IsActive(b.playerID) {
		if b.state != stateIdle {
			e.dispatcher.ResetPlayer(b.playerID)
			b.state = stateIdle
		}
		return
	}

	trackID := p.CurrentTrack().Identity()
	if b.lastTrackID != "" && b.lastTrackID != trackID {
		// Track switch: clear the edge detectors and transient effects so the
		// new track is evaluated from scratch.
		b.hasTriggered = false
		delete(b.pulseFired, b.lastTrackID)
		e.dispatcher.ResetPlayer(b.playerID)
		logrus.Debugf("engine: scenario %s player %s switched track %s -> %s",
			b.scenario.ID, b.playerID, b.lastTrackID, trackID)
	}
	b.lastTrackID = trackID
	b.state = statePlaying

	// Trim is a shaping effect, not a one-shot: it engages on play for every
	// matching track, independent of the firing veto chain.
	if a, ok := b.scenario.Action(scenario.KindTrim); ok && b.scenario.ApplyOn.MatchesTrack(trackID) {
		if err := e.dispatcher.EnterTrim(ctx, p, a.Trim); err != nil {
			logrus.Warnf("engine: trim entry failed for scenario %s player %s: %v", b.scenario.ID, b.playerID, err)
		}
	}

	// Downloads gated by an earlier fire come back when the throttle would
	// suppress the scenario's next occurrence: a popup that can no longer
	// fire must not keep URLs stripped.
	sc := b.scenario
	if sc.HasAction(scenario.KindDownloadGate) && sc.Advanced.Enabled() && e.limiter.Suppressed(ctx, sc) {
		e.dispatcher.RestoreGate(sc, b.playerID, trackID)
	}
}

// handleProgress is the hot path: advance any active trim, then evaluate the
// time-based condition with its edge detection and veto chain.
func (e *Engine) handleProgress(ctx context.Context, b *binding, p playback.Player, evt playback.Event) {
	if b.state != statePlaying {
		return
	}

	pos := evt.Position
	dur := evt.Duration
	if dur <= 0 {
		dur = p.Duration()
	}

	e.dispatcher.TickTrim(p, pos)

	cond := b.scenario.Condition
	if cond.DownloadClicked {
		return
	}
	if !b.scenario.ApplyOn.MatchesTrack(b.lastTrackID) {
		return
	}

	// While the media is still loading the duration is unknown and nothing
	// fires, for seconds thresholds too: the end-of-track decision needs a
	// real duration.
	if dur <= 0 {
		return
	}
	threshold, ok := cond.Threshold(dur)
	if !ok {
		return
	}
	// Position zero and paused ticks are spurious: browsers emit them while
	// buffering or right after a source change.
	if pos == 0 || p.Paused() {
		return
	}

	if cond.Required {
		if pos < threshold {
			b.hasTriggered = false
			return
		}
		if b.hasTriggered {
			return
		}
		b.hasTriggered = true
		e.attemptFire(ctx, b, p, pos, dur, threshold)
		return
	}

	if !scenario.CrossesPulse(pos, threshold) {
		return
	}
	if b.pulseFired[b.lastTrackID] {
		return
	}
	b.pulseFired[b.lastTrackID] = true
	e.attemptFire(ctx, b, p, pos, dur, threshold)
}

func (e *Engine) handlePause(b *binding, p playback.Player) {
	// The watermark loop only runs while the primary is audible.
	e.dispatcher.StopWatermark(b.playerID)
}

func (e *Engine) handleEnded(b *binding, p playback.Player) {
	e.dispatcher.StopWatermark(b.playerID)
	if b.state == statePlaying {
		b.state = stateArmed
	}
}

// handleDownloadClick evaluates event-based conditions through the same veto
// chain as time-based ones; the time vetoes do not apply.
func (e *Engine) handleDownloadClick(ctx context.Context, b *binding, p playback.Player, evt playback.Event) {
	if !b.scenario.Condition.DownloadClicked {
		return
	}

	trackID := evt.TrackID
	if trackID == "" {
		trackID = p.CurrentTrack().Identity()
	}
	if !b.scenario.ApplyOn.MatchesTrack(trackID) {
		return
	}
	b.lastTrackID = trackID

	e.attemptFire(ctx, b, p, p.Position(), p.Duration(), 0)
}

// attemptFire runs the veto chain and dispatches on success. Veto order:
// global any-submitted check, session and persisted once rules, then the
// cross-track throttle (which counts the occurrence even when it vetoes).
func (e *Engine) attemptFire(ctx context.Context, b *binding, p playback.Player, pos, dur, threshold float64) bool {
	sc := b.scenario
	trackID := b.lastTrackID

	if sc.Once.AnySubmittedAnywhere {
		any, err := e.store.AnyActioned(ctx, sc)
		if err != nil {
			logrus.Warnf("engine: any-actioned check failed for scenario %s, allowing fire: %v", sc.ID, err)
		} else if any {
			return e.veto(sc, vetoAnySubmitted)
		}
	}

	trackKey := "track|" + sc.ID + "|" + b.playerID + "|" + trackID
	playerKey := "player|" + sc.ID + "|" + b.playerID
	if sc.Once.PerTrackUntilRefresh && e.sessionFired[trackKey] {
		return e.veto(sc, vetoOncePerTrack)
	}
	if sc.Once.PerPlayerUntilRefresh && e.sessionFired[playerKey] {
		return e.veto(sc, vetoOncePlayer)
	}
	if sc.Once.UntilStoreCleared && e.allActioned(ctx, sc, b.playerID, trackID) {
		return e.veto(sc, vetoRecorded)
	}

	if !e.limiter.Occur(ctx, sc) {
		// A throttled scenario must leave no half-applied side effects: any
		// download URL stripped by an earlier fire comes back.
		if sc.HasAction(scenario.KindDownloadGate) {
			e.dispatcher.RestoreGate(sc, b.playerID, trackID)
		}
		return e.veto(sc, vetoThrottled)
	}

	b.state = stateFiring
	firing := &dispatch.Firing{
		Player:     p,
		TrackID:    trackID,
		Position:   pos,
		Duration:   dur,
		AtTrackEnd: dur > 0 && threshold >= dur-1,
	}
	logrus.Infof("engine: scenario %s fired on player %s track %s at %.1fs", sc.ID, b.playerID, trackID, pos)
	e.dispatcher.Dispatch(ctx, sc, firing)
	b.state = statePlaying

	if sc.Once.PerTrackUntilRefresh {
		e.sessionFired[trackKey] = true
	}
	if sc.Once.PerPlayerUntilRefresh {
		e.sessionFired[playerKey] = true
	}

	e.fires++
	metrics.ScenarioFiresTotal.WithLabelValues(sc.ID).Inc()
	return true
}

// allActioned reports whether every action of the scenario already has a
// per-tuple record, meaning a dispatch would skip each one. Store errors
// degrade to "not actioned".
func (e *Engine) allActioned(ctx context.Context, sc *scenario.Scenario, playerID, trackID string) bool {
	for i := range sc.Actions {
		actioned, err := e.store.Actioned(ctx, sc, playerID, trackID, sc.Actions[i].Kind)
		if err != nil {
			logrus.Warnf("engine: record check failed for scenario %s: %v", sc.ID, err)
			return false
		}
		if !actioned {
			return false
		}
	}
	return true
}

func (e *Engine) veto(sc *scenario.Scenario, reason string) bool {
	e.vetoes++
	metrics.FireVetoesTotal.WithLabelValues(sc.ID, reason).Inc()
	logrus.Debugf("engine: scenario %s vetoed (%s)", sc.ID, reason)
	return false
}

// SeekFraction maps a click fraction on a trimmed progress bar to an absolute
// media position. Returns false when the player has no active trim.
func (e *Engine) SeekFraction(playerID string, fraction float64) (float64, bool) {
	return e.dispatcher.SeekFraction(playerID, fraction)
}

// ProgressFraction maps an absolute position to the visible fraction of a
// trimmed progress bar. Returns false when the player has no active trim.
func (e *Engine) ProgressFraction(playerID string, position float64) (float64, bool) {
	return e.dispatcher.ProgressFraction(playerID, position)
}

// Stats returns a snapshot of engine activity.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Scenarios: len(e.scenarios),
		Bindings:  len(e.bindings),
		Fires:     e.fires,
		Vetoes:    e.vetoes,
	}
}
