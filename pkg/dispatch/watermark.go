package dispatch

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/scenario"
)

type watermarkLoop struct {
	stop chan struct{}
}

// startWatermark begins repeating the watermark clip at a fixed wall-clock
// interval while the primary plays. The watermark volume is a fraction of
// the primary volume, recomputed each interval. Idempotent per player.
func (d *Dispatcher) startWatermark(p playback.Player, params *scenario.WatermarkParams) error {
	if d.deps.Secondary == nil {
		return fmt.Errorf("no secondary player factory configured")
	}

	d.mu.Lock()
	if _, running := d.loops[p.ID()]; running {
		d.mu.Unlock()
		return nil
	}
	if d.watermark == nil {
		d.watermark = d.deps.Secondary()
	}
	sec := d.watermark
	loop := &watermarkLoop{stop: make(chan struct{})}
	d.loops[p.ID()] = loop
	d.mu.Unlock()

	interval := time.Duration(params.LoopGapSeconds * float64(time.Second))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loop.stop:
				return
			case <-ticker.C:
				if p.Paused() {
					continue
				}
				sec.SetVolume(p.Volume() * params.Volume)
				if err := sec.Play(params.URL); err != nil {
					logrus.Warnf("watermark: playback failed on player %s: %v", p.ID(), err)
				}
			}
		}
	}()

	logrus.Infof("watermark: looping %s every %.0fs on player %s", params.URL, params.LoopGapSeconds, p.ID())
	return nil
}

// StopWatermark clears the watermark loop for a player, called on pause,
// ended and track switches.
func (d *Dispatcher) StopWatermark(playerID string) {
	d.mu.Lock()
	loop, ok := d.loops[playerID]
	if ok {
		delete(d.loops, playerID)
	}
	sec := d.watermark
	d.mu.Unlock()

	if !ok {
		return
	}
	close(loop.stop)
	if sec != nil {
		sec.Stop()
	}
	logrus.Debugf("watermark: stopped on player %s", playerID)
}
