// Package dispatch executes the ordered effect list of a fired scenario:
// trim, interstitial playback, watermark loop, download gating, popup,
// redirect and scroll. Side-effect targets outside the player itself are
// collaborators behind interfaces.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wavemark/playback-triggers/pkg/metrics"
	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/scenario"
	"github.com/wavemark/playback-triggers/pkg/store"
	"github.com/wavemark/playback-triggers/pkg/throttle"
)

// SecondaryPlayer is an auxiliary audio element shared across dispatches,
// used for interstitials and watermark loops. Stop must not invoke the
// OnEnded callback.
type SecondaryPlayer interface {
	Play(url string) error
	Stop()
	SetVolume(v float64)
	SetOnEnded(fn func())
	Playing() bool
}

// SecondaryFactory lazily creates a secondary player element.
type SecondaryFactory func() SecondaryPlayer

// PopupRequest identifies which lead-capture form to render and for what.
type PopupRequest struct {
	ScenarioID string
	PlayerID   string
	TrackID    string
	Hook       string
	PopupID    string
	Content    string
}

// PopupResult is the outcome of a popup submission. UnlockURL optionally
// carries a continuation payload (e.g. an unlocked download URL).
type PopupResult struct {
	Submitted bool
	UnlockURL string
	Err       error
}

// Popup renders a lead-capture form. Show is fire-and-forget from the
// engine's perspective; done is invoked once with the submission outcome,
// possibly much later and possibly never.
type Popup interface {
	Show(ctx context.Context, req PopupRequest, done func(PopupResult))
}

// Navigator performs page-level navigation side effects.
type Navigator interface {
	Redirect(url, target string)
	ScrollTo(targetID string)
}

// DownloadControls strips and restores the download URLs of player controls.
// Strip returns the original URL so it can be cached; removing it is
// destructive on the host side.
type DownloadControls interface {
	Strip(playerID, trackID string) (string, bool)
	Restore(playerID, trackID, url string)
}

// Overlay shows a message over a player while an interstitial runs,
// optionally pointer-locking its controls.
type Overlay interface {
	Show(playerID, message string, lockControls bool)
	Hide(playerID string)
}

// Dependencies carries the collaborators a dispatcher needs. Store and
// Limiter are required; the rest may be nil, disabling the matching effects.
type Dependencies struct {
	Store     store.Store
	Limiter   *throttle.Limiter
	Secondary SecondaryFactory
	Popup     Popup
	Navigator Navigator
	Downloads DownloadControls
	Overlay   Overlay
}

// Result is the outcome of one action within a dispatch.
type Result struct {
	Kind    scenario.ActionKind
	Skipped bool
	Err     error
}

// Firing is the evaluation context of one scenario fire.
type Firing struct {
	Player   playback.Player
	TrackID  string
	Position float64
	Duration float64

	// AtTrackEnd is set when the trigger point is effectively the end of the
	// track; the interstitial then seeks the primary to its end instead of
	// resuming.
	AtTrackEnd bool
}

// Dispatcher executes scenario actions. It owns the two shared secondary
// audio elements, active trim state per player, and the cache of stripped
// download URLs.
type Dispatcher struct {
	deps   Dependencies
	tracer trace.Tracer

	mu               sync.Mutex
	interstitial     SecondaryPlayer
	interstitialOver playback.Player // primary the interstitial plays over; nil when idle
	interstitialPrev float64         // that primary's volume before the fade-down
	watermark        SecondaryPlayer
	loops            map[string]*watermarkLoop
	trims            map[string]*trimState
	gated            map[string]map[string]string // scenarioID -> playerID|trackID -> original URL
}

// New creates a dispatcher with the given collaborators.
func New(deps Dependencies) *Dispatcher {
	return &Dispatcher{
		deps:   deps,
		tracer: otel.Tracer("playback-triggers/dispatch"),
		loops:  make(map[string]*watermarkLoop),
		trims:  make(map[string]*trimState),
		gated:  make(map[string]map[string]string),
	}
}

// Dispatch executes the scenario's actions strictly in declaration order.
// Each action independently re-checks its own per-kind record immediately
// before running, so a partially persisted earlier fire cannot make a later
// action skip incorrectly. A failing action is contained and logged; the
// remaining actions still run.
func (d *Dispatcher) Dispatch(ctx context.Context, sc *scenario.Scenario, f *Firing) []Result {
	results := make([]Result, 0, len(sc.Actions))

	for i := range sc.Actions {
		a := &sc.Actions[i]

		if sc.Once.Persists() {
			actioned, err := d.deps.Store.Actioned(ctx, sc, f.Player.ID(), f.TrackID, a.Kind)
			if err != nil {
				// Persistence unavailable: degrade to non-idempotent firing.
				logrus.Warnf("dispatch: record check failed for scenario %s action %s: %v", sc.ID, a.Kind, err)
			} else if actioned {
				logrus.Debugf("dispatch: scenario %s action %s already actioned for track %s, skipping", sc.ID, a.Kind, f.TrackID)
				results = append(results, Result{Kind: a.Kind, Skipped: true})
				continue
			}
		}

		err := d.execute(ctx, sc, f, a)
		status := "ok"
		if err != nil {
			status = "error"
			logrus.Errorf("dispatch: scenario %s action %s failed: %v", sc.ID, a.Kind, err)
		}
		metrics.ActionsExecutedTotal.WithLabelValues(sc.ID, string(a.Kind), status).Inc()
		results = append(results, Result{Kind: a.Kind, Err: err})

		// Popup and download-gate records are written on popup submission,
		// not on dispatch.
		if err == nil && sc.Once.UntilStoreCleared && a.Kind != scenario.KindPopup && a.Kind != scenario.KindDownloadGate {
			if err := d.deps.Store.MarkActioned(ctx, sc, f.Player.ID(), f.TrackID, a.Kind); err != nil {
				logrus.Warnf("dispatch: failed to persist record for scenario %s action %s: %v", sc.ID, a.Kind, err)
			}
		}
	}

	return results
}

func (d *Dispatcher) execute(ctx context.Context, sc *scenario.Scenario, f *Firing, a *scenario.Action) error {
	ctx, span := d.tracer.Start(ctx, "dispatch."+string(a.Kind),
		trace.WithAttributes(
			attribute.String("scenario.id", sc.ID),
			attribute.String("player.id", f.Player.ID()),
			attribute.String("track.id", f.TrackID),
		))
	defer span.End()

	switch a.Kind {
	case scenario.KindTrim:
		return d.EnterTrim(ctx, f.Player, a.Trim)
	case scenario.KindInterstitial:
		return d.playInterstitial(ctx, f, a.Interstitial)
	case scenario.KindWatermark:
		return d.startWatermark(f.Player, a.Watermark)
	case scenario.KindPopup:
		return d.showPopup(ctx, sc, f, a.Popup)
	case scenario.KindRedirect:
		return d.redirect(f, a.Redirect)
	case scenario.KindScroll:
		return d.scroll(f, a.Scroll)
	case scenario.KindDownloadGate:
		return d.gateDownloads(sc, f)
	}
	return fmt.Errorf("unknown action kind: %s", a.Kind)
}

// ResetPlayer tears down per-player transient effect state on track or
// player switches: the active trim, the watermark loop and a still-playing
// interstitial.
func (d *Dispatcher) ResetPlayer(playerID string) {
	d.ExitTrim(playerID)
	d.StopWatermark(playerID)
	d.stopInterstitial(playerID)
}
