package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// showPopup delegates to the lead-capture collaborator. The submission is
// fire-and-forget: a network failure leaves the record un-actioned so the
// user may retry, and success marks the gating records and restores any
// stripped downloads.
func (d *Dispatcher) showPopup(ctx context.Context, sc *scenario.Scenario, f *Firing, params *scenario.PopupParams) error {
	if d.deps.Popup == nil {
		return fmt.Errorf("no popup collaborator configured")
	}

	playerID := f.Player.ID()
	trackID := f.TrackID

	req := PopupRequest{
		ScenarioID: sc.ID,
		PlayerID:   playerID,
		TrackID:    trackID,
		Hook:       params.Hook,
		PopupID:    params.PopupID,
		Content:    params.Content,
	}

	d.deps.Popup.Show(ctx, req, func(res PopupResult) {
		if res.Err != nil {
			logrus.Warnf("popup: submission failed for scenario %s: %v", sc.ID, res.Err)
			return
		}
		if !res.Submitted {
			return
		}
		d.completeSubmission(sc, playerID, trackID, res.UnlockURL)
	})

	logrus.Infof("popup: shown for scenario %s (player %s, track %s)", sc.ID, playerID, trackID)
	return nil
}

// completeSubmission runs when the collaborator reports a successful
// submission, possibly long after the track changed. It writes the popup and
// download-gate records and restores gated download URLs, applying the
// unlock payload when one was returned.
func (d *Dispatcher) completeSubmission(sc *scenario.Scenario, playerID, trackID, unlockURL string) {
	ctx := context.Background()

	if sc.Once.Persists() {
		if err := d.deps.Store.MarkActioned(ctx, sc, playerID, trackID, scenario.KindPopup); err != nil {
			logrus.Warnf("popup: failed to persist record for scenario %s: %v", sc.ID, err)
		}
		if sc.HasAction(scenario.KindDownloadGate) {
			if err := d.deps.Store.MarkActioned(ctx, sc, playerID, trackID, scenario.KindDownloadGate); err != nil {
				logrus.Warnf("popup: failed to persist gate record for scenario %s: %v", sc.ID, err)
			}
		}
	}

	if sc.Once.AnySubmittedAnywhere {
		// One submission anywhere unlocks the whole scenario.
		d.restoreAllDownloads(sc.ID, unlockURL)
	} else {
		d.restoreDownloads(sc.ID, playerID, trackID, unlockURL)
	}
	logrus.Infof("popup: submission completed for scenario %s (player %s, track %s)", sc.ID, playerID, trackID)
}
