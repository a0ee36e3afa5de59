package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// trimFadeSeconds is the width of the linear fade windows at the segment
// edges when fade-in/out is enabled.
const trimFadeSeconds = 3.0

// durationPollInterval and durationPollAttempts bound the wait for an
// asynchronously loading track to report its duration before seeking.
const (
	durationPollInterval = 100 * time.Millisecond
	durationPollAttempts = 30
)

type trimState struct {
	params     scenario.TrimParams
	baseVolume float64
}

// EnterTrim activates a trim segment on a player: mutes, waits (bounded) for
// the duration to become known, seeks to the segment start and restores
// volume, so un-trimmed audio never leaks before the start offset.
func (d *Dispatcher) EnterTrim(ctx context.Context, p playback.Player, params *scenario.TrimParams) error {
	d.mu.Lock()
	st, exists := d.trims[p.ID()]
	if exists && st.params == *params {
		d.mu.Unlock()
		// Replaying a track whose trim is still registered: the playhead may
		// have reset outside the segment, and it must come back before any
		// un-trimmed audio is heard.
		if pos := p.Position(); pos < params.StartTime || pos > params.End() {
			p.Seek(params.StartTime)
		}
		return nil
	}
	st = &trimState{params: *params, baseVolume: p.Volume()}
	if st.baseVolume <= 0 {
		st.baseVolume = 1.0
	}
	d.trims[p.ID()] = st
	d.mu.Unlock()

	p.SetVolume(0)

	wait := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(durationPollInterval), durationPollAttempts),
		ctx)
	err := backoff.Retry(func() error {
		if p.Duration() <= 0 {
			return fmt.Errorf("duration not yet known")
		}
		return nil
	}, wait)
	if err != nil {
		// Media never loaded within the window; abandon the seek and let the
		// next progress tick retry the trim bounds.
		logrus.Warnf("trim: gave up waiting for duration on player %s: %v", p.ID(), err)
		p.SetVolume(st.baseVolume)
		return nil
	}

	if pos := p.Position(); pos < params.StartTime || pos > params.End() {
		p.Seek(params.StartTime)
	}
	if params.FadeIn {
		p.SetVolume(0)
	} else {
		p.SetVolume(st.baseVolume)
	}
	logrus.Debugf("trim: entered segment [%.1f, %.1f] on player %s", params.StartTime, params.End(), p.ID())
	return nil
}

// ExitTrim deactivates the trim for a player, restoring its volume.
func (d *Dispatcher) ExitTrim(playerID string) {
	d.mu.Lock()
	_, ok := d.trims[playerID]
	delete(d.trims, playerID)
	d.mu.Unlock()
	if ok {
		logrus.Debugf("trim: exited on player %s", playerID)
	}
}

// TickTrim advances trim behavior for one progress tick: clamps the playhead
// into the segment, applies linear fades, and handles segment end by either
// jumping to end-of-media or advancing to the next track.
func (d *Dispatcher) TickTrim(p playback.Player, position float64) {
	d.mu.Lock()
	st, ok := d.trims[p.ID()]
	d.mu.Unlock()
	if !ok {
		return
	}

	start, end := st.params.StartTime, st.params.End()

	if position < start {
		p.Seek(start)
		return
	}

	vol := st.baseVolume
	if st.params.FadeIn && position < start+trimFadeSeconds {
		vol = st.baseVolume * (position - start) / trimFadeSeconds
	}
	if st.params.FadeOut && position > end-trimFadeSeconds {
		fadeOut := st.baseVolume * (end - position) / trimFadeSeconds
		if fadeOut < vol {
			vol = fadeOut
		}
	}
	if vol < 0 {
		vol = 0
	}
	p.SetVolume(vol)

	if position >= end {
		// The segment covering the last logical second jumps straight to
		// end-of-media; otherwise advance to the next track.
		if dur := p.Duration(); dur > 0 && end >= dur-1 {
			p.SeekToEnd()
		} else {
			p.NextTrack()
		}
	}
}

// ProgressFraction maps an absolute media position to the visible fraction
// of the trimmed progress bar. Returns false when no trim is active.
func (d *Dispatcher) ProgressFraction(playerID string, position float64) (float64, bool) {
	d.mu.Lock()
	st, ok := d.trims[playerID]
	d.mu.Unlock()
	if !ok || st.params.Duration <= 0 {
		return 0, false
	}

	f := (position - st.params.StartTime) / st.params.Duration
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f, true
}

// SeekFraction maps a click fraction on the visible bar to an absolute media
// position inside the trim segment, clamped to the segment bounds. Returns
// false when no trim is active.
func (d *Dispatcher) SeekFraction(playerID string, fraction float64) (float64, bool) {
	d.mu.Lock()
	st, ok := d.trims[playerID]
	d.mu.Unlock()
	if !ok {
		return 0, false
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return st.params.StartTime + fraction*st.params.Duration, true
}
