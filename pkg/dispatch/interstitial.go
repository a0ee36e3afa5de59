package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// primaryFadeSteps is the number of volume decrements used to fade the
// primary element to silence before the interstitial starts.
const primaryFadeSteps = 5

// playInterstitial pauses the primary player and plays the interstitial on
// the shared secondary element. Only one interstitial runs at a time; a fire
// arriving while one is playing is dropped. The owning primary and its
// pre-fade volume are recorded so teardown can restore it.
func (d *Dispatcher) playInterstitial(ctx context.Context, f *Firing, params *scenario.InterstitialParams) error {
	if d.deps.Secondary == nil {
		return fmt.Errorf("no secondary player factory configured")
	}

	primary := f.Player
	prevVolume := primary.Volume()
	atEnd := f.AtTrackEnd

	d.mu.Lock()
	if d.interstitialOver != nil {
		d.mu.Unlock()
		logrus.Debugf("interstitial: already playing, dropping fire for player %s", primary.ID())
		return nil
	}
	if d.interstitial == nil {
		d.interstitial = d.deps.Secondary()
	}
	sec := d.interstitial
	d.interstitialOver = primary
	d.interstitialPrev = prevVolume
	d.mu.Unlock()

	// Fade the primary down before pausing so the cut is not audible.
	for i := primaryFadeSteps - 1; i > 0; i-- {
		primary.SetVolume(prevVolume * float64(i) / primaryFadeSteps)
	}
	primary.SetVolume(0)
	primary.Pause()

	if d.deps.Overlay != nil {
		d.deps.Overlay.Show(primary.ID(), params.Message, params.LockControls)
	}

	sec.SetOnEnded(func() {
		d.mu.Lock()
		if d.interstitialOver != primary {
			// Already torn down by a track or player switch.
			d.mu.Unlock()
			return
		}
		d.interstitialOver = nil
		d.mu.Unlock()

		if d.deps.Overlay != nil {
			d.deps.Overlay.Hide(primary.ID())
		}
		primary.SetVolume(prevVolume)
		if atEnd {
			// Fired at end-of-track: don't resume, let the track finish.
			primary.SeekToEnd()
		} else {
			primary.Resume()
		}
	})

	sec.SetVolume(1.0)
	if err := sec.Play(params.URL); err != nil {
		d.mu.Lock()
		d.interstitialOver = nil
		d.mu.Unlock()
		if d.deps.Overlay != nil {
			d.deps.Overlay.Hide(primary.ID())
		}
		primary.SetVolume(prevVolume)
		primary.Resume()
		return fmt.Errorf("interstitial playback failed: %w", err)
	}

	logrus.Infof("interstitial: playing %s over player %s", params.URL, primary.ID())
	return nil
}

// stopInterstitial aborts a running interstitial during track or player
// teardown. Only the owning player's teardown stops it; the primary gets its
// volume and playback back, since the completion path will never run.
func (d *Dispatcher) stopInterstitial(playerID string) {
	d.mu.Lock()
	primary := d.interstitialOver
	if primary == nil || primary.ID() != playerID {
		d.mu.Unlock()
		return
	}
	sec := d.interstitial
	prevVolume := d.interstitialPrev
	d.interstitialOver = nil
	d.mu.Unlock()

	if sec != nil {
		sec.Stop()
	}
	if d.deps.Overlay != nil {
		d.deps.Overlay.Hide(playerID)
	}
	primary.SetVolume(prevVolume)
	primary.Resume()
	logrus.Debugf("interstitial: stopped for player %s", playerID)
}
