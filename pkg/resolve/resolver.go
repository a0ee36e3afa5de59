// Package resolve determines which live players a scenario applies to,
// honoring audience, target and exclusion filters.
package resolve

import (
	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/scenario"
)

// Viewer is the ambient auth state of the current session.
type Viewer struct {
	LoggedIn bool
	Roles    []string
}

// HasRole reports whether the viewer carries the given role.
func (v Viewer) HasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Players resolves a scenario against the live surface for the given viewer.
// The audience filter is evaluated once per call; a scenario whose audience
// excludes the viewer yields the empty set immediately. Track-level filters
// are applied later, inside the evaluator, not here.
func Players(sc *scenario.Scenario, surface *playback.Surface, viewer Viewer) []playback.Player {
	if !audienceAllows(sc.ApplyFor, viewer) {
		logrus.Debugf("scenario %s: audience %q excludes current viewer", sc.ID, sc.ApplyFor.Audience)
		return nil
	}

	live := surface.Players()
	var candidates []playback.Player
	for _, p := range live {
		if matchesTarget(sc.ApplyOn, p) {
			candidates = append(candidates, p)
			continue
		}
		// A sticky player can independently become the active player for
		// any track, so it is always a candidate.
		if p.Sticky() {
			candidates = append(candidates, p)
		}
	}

	var out []playback.Player
	for _, p := range candidates {
		if excluded(sc.ExcludeOn, p) {
			logrus.Debugf("scenario %s: player %s excluded by container filter", sc.ID, p.ID())
			continue
		}
		out = append(out, p)
	}
	return out
}

func audienceAllows(af scenario.ApplyFor, viewer Viewer) bool {
	switch af.Audience {
	case scenario.AudienceEverybody, "":
		return true
	case scenario.AudienceLoggedIn:
		return viewer.LoggedIn
	case scenario.AudienceLoggedOut:
		return !viewer.LoggedIn
	case scenario.AudienceRoles:
		for _, role := range af.Roles {
			if viewer.HasRole(role) {
				return true
			}
		}
		return false
	}
	return false
}

// matchesTarget applies the player-level target filter. A specific-track
// filter without an explicit container filter falls back to all players.
func matchesTarget(on scenario.ApplyOn, p playback.Player) bool {
	if on.AllPlayers || len(on.Containers) == 0 {
		return true
	}
	return containsAny(p.ContainerChain(), on.Containers)
}

// excluded tests descendant-of-excluded-container by ancestor containment,
// not by selector string matching.
func excluded(excludeOn []string, p playback.Player) bool {
	if len(excludeOn) == 0 {
		return false
	}
	return containsAny(p.ContainerChain(), excludeOn)
}

func containsAny(chain, wanted []string) bool {
	for _, c := range chain {
		for _, w := range wanted {
			if c == w {
				return true
			}
		}
	}
	return false
}
