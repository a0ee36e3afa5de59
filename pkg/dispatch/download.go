package dispatch

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

func gateKey(playerID, trackID string) string {
	return playerID + "|" + trackID
}

// gateDownloads strips the download URL of the current track's controls and
// caches the original. Stripping is destructive on the host side, so the URL
// is cached the first time a control is seen and never re-stripped.
func (d *Dispatcher) gateDownloads(sc *scenario.Scenario, f *Firing) error {
	if d.deps.Downloads == nil {
		return nil
	}

	key := gateKey(f.Player.ID(), f.TrackID)

	d.mu.Lock()
	if d.gated[sc.ID] == nil {
		d.gated[sc.ID] = make(map[string]string)
	}
	if _, cached := d.gated[sc.ID][key]; cached {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	url, ok := d.deps.Downloads.Strip(f.Player.ID(), f.TrackID)
	if !ok {
		return nil
	}

	d.mu.Lock()
	d.gated[sc.ID][key] = url
	d.mu.Unlock()

	logrus.Debugf("download gate: stripped URL for %s under scenario %s", key, sc.ID)
	return nil
}

// RestoreGate restores the original URL of one gated control, e.g. when
// throttling says the scenario should be skipped.
func (d *Dispatcher) RestoreGate(sc *scenario.Scenario, playerID, trackID string) {
	d.restoreDownloads(sc.ID, playerID, trackID, "")
}

func (d *Dispatcher) restoreDownloads(scenarioID, playerID, trackID, unlockURL string) {
	if d.deps.Downloads == nil {
		return
	}

	key := gateKey(playerID, trackID)
	d.mu.Lock()
	url, ok := d.gated[scenarioID][key]
	if ok {
		delete(d.gated[scenarioID], key)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	if unlockURL != "" {
		url = unlockURL
	}
	d.deps.Downloads.Restore(playerID, trackID, url)
	logrus.Debugf("download gate: restored URL for %s under scenario %s", key, scenarioID)
}

// restoreAllDownloads restores every gated control under a scenario,
// used when one submission anywhere unlocks the whole scenario.
func (d *Dispatcher) restoreAllDownloads(scenarioID, unlockURL string) {
	if d.deps.Downloads == nil {
		return
	}

	d.mu.Lock()
	entries := d.gated[scenarioID]
	d.gated[scenarioID] = make(map[string]string)
	d.mu.Unlock()

	for key, url := range entries {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) != 2 {
			continue
		}
		if unlockURL != "" {
			url = unlockURL
		}
		d.deps.Downloads.Restore(parts[0], parts[1], url)
	}
	if len(entries) > 0 {
		logrus.Infof("download gate: restored %d controls under scenario %s", len(entries), scenarioID)
	}
}
