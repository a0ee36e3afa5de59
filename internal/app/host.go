package app

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/dispatch"
)

// The host collaborators below are log-backed defaults for standalone runs
// and integration environments without a real media host. A host embedding
// the engine replaces them with implementations bridged to its UI layer.

type hostSecondary struct {
	mu      sync.Mutex
	playing bool
	onEnded func()
}

func newHostSecondary() dispatch.SecondaryPlayer {
	return &hostSecondary{}
}

func (s *hostSecondary) Play(url string) error {
	s.mu.Lock()
	s.playing = true
	onEnded := s.onEnded
	s.mu.Unlock()
	logrus.Infof("host: secondary play %s", url)

	// No real audio element here: report immediate completion so the
	// dispatcher's resume path still runs.
	if onEnded != nil {
		go func() {
			s.Stop()
			onEnded()
		}()
	}
	return nil
}

func (s *hostSecondary) Stop() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *hostSecondary) SetVolume(v float64) {}

func (s *hostSecondary) SetOnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *hostSecondary) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

type hostPopup struct{}

func (hostPopup) Show(ctx context.Context, req dispatch.PopupRequest, done func(dispatch.PopupResult)) {
	logrus.Infof("host: popup %s requested for player %s", req.PopupID, req.PlayerID)
}

type hostNavigator struct{}

func (hostNavigator) Redirect(url, target string) {
	logrus.Infof("host: redirect to %s (target=%q)", url, target)
}

func (hostNavigator) ScrollTo(targetID string) {
	logrus.Infof("host: scroll to %s", targetID)
}

type hostDownloads struct{}

func (hostDownloads) Strip(playerID, trackID string) (string, bool) {
	return "", false
}

func (hostDownloads) Restore(playerID, trackID, url string) {}

type hostOverlay struct{}

func (hostOverlay) Show(playerID, message string, lockControls bool) {
	logrus.Infof("host: overlay shown on player %s (lock=%v)", playerID, lockControls)
}

func (hostOverlay) Hide(playerID string) {}
