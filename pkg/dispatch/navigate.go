package dispatch

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// redirect navigates away, optionally pausing playback first. No persistence
// implications.
func (d *Dispatcher) redirect(f *Firing, params *scenario.RedirectParams) error {
	if d.deps.Navigator == nil {
		return fmt.Errorf("no navigator collaborator configured")
	}

	if params.StopPlayer {
		f.Player.Pause()
	}
	d.deps.Navigator.Redirect(params.URL, params.Target)
	logrus.Infof("redirect: %s (target=%q)", params.URL, params.Target)
	return nil
}

// scroll scrolls the host surface to a target, optionally pausing first.
func (d *Dispatcher) scroll(f *Firing, params *scenario.ScrollParams) error {
	if d.deps.Navigator == nil {
		return fmt.Errorf("no navigator collaborator configured")
	}

	if params.StopPlayer {
		f.Player.Pause()
	}
	d.deps.Navigator.ScrollTo(params.TargetID)
	logrus.Debugf("scroll: to %s", params.TargetID)
	return nil
}
