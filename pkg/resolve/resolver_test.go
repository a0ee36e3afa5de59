package resolve

import (
	"testing"

	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/scenario"
)

func surfaceWith(players ...*playback.FakePlayer) *playback.Surface {
	s := playback.NewSurface()
	for _, p := range players {
		s.Add(p)
	}
	return s
}

func ids(players []playback.Player) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.ID())
	}
	return out
}

func TestPlayers_AllPlayers(t *testing.T) {
	a := playback.NewFakePlayer("a")
	b := playback.NewFakePlayer("b")
	sc := &scenario.Scenario{ID: "s", ApplyOn: scenario.ApplyOn{AllPlayers: true}}

	got := Players(sc, surfaceWith(a, b), Viewer{})
	if len(got) != 2 {
		t.Fatalf("resolved %d players, expected 2: %v", len(got), ids(got))
	}
}

func TestPlayers_ContainerFilter(t *testing.T) {
	inside := playback.NewFakePlayer("inside")
	inside.Containers = []string{"post-123", "main"}
	outside := playback.NewFakePlayer("outside")
	outside.Containers = []string{"sidebar"}

	sc := &scenario.Scenario{ID: "s", ApplyOn: scenario.ApplyOn{Containers: []string{"post-123"}}}

	got := Players(sc, surfaceWith(inside, outside), Viewer{})
	if len(got) != 1 || got[0].ID() != "inside" {
		t.Fatalf("resolved %v, expected [inside]", ids(got))
	}
}

func TestPlayers_StickyAlwaysCandidate(t *testing.T) {
	sticky := playback.NewFakePlayer("sticky")
	sticky.IsSticky = true
	sticky.Containers = []string{"footer"}

	sc := &scenario.Scenario{ID: "s", ApplyOn: scenario.ApplyOn{Containers: []string{"post-123"}}}

	got := Players(sc, surfaceWith(sticky), Viewer{})
	if len(got) != 1 {
		t.Fatalf("resolved %v, expected the sticky player despite the container filter", ids(got))
	}
}

func TestPlayers_ExclusionByAncestor(t *testing.T) {
	nested := playback.NewFakePlayer("nested")
	nested.Containers = []string{"widget", "promo-free", "main"}
	plain := playback.NewFakePlayer("plain")
	plain.Containers = []string{"main"}

	sc := &scenario.Scenario{
		ID:        "s",
		ApplyOn:   scenario.ApplyOn{AllPlayers: true},
		ExcludeOn: []string{"promo-free"},
	}

	got := Players(sc, surfaceWith(nested, plain), Viewer{})
	if len(got) != 1 || got[0].ID() != "plain" {
		t.Fatalf("resolved %v, expected [plain] (descendant of excluded container dropped)", ids(got))
	}
}

func TestPlayers_Audience(t *testing.T) {
	p := playback.NewFakePlayer("p")
	surface := surfaceWith(p)

	loggedIn := &scenario.Scenario{
		ID:       "s",
		ApplyFor: scenario.ApplyFor{Audience: scenario.AudienceLoggedIn},
		ApplyOn:  scenario.ApplyOn{AllPlayers: true},
	}
	if got := Players(loggedIn, surface, Viewer{LoggedIn: false}); len(got) != 0 {
		t.Errorf("logged-out viewer resolved %v, expected empty set", ids(got))
	}
	if got := Players(loggedIn, surface, Viewer{LoggedIn: true}); len(got) != 1 {
		t.Errorf("logged-in viewer resolved %v, expected [p]", ids(got))
	}

	roles := &scenario.Scenario{
		ID:       "s2",
		ApplyFor: scenario.ApplyFor{Audience: scenario.AudienceRoles, Roles: []string{"subscriber"}},
		ApplyOn:  scenario.ApplyOn{AllPlayers: true},
	}
	if got := Players(roles, surface, Viewer{LoggedIn: true, Roles: []string{"editor"}}); len(got) != 0 {
		t.Errorf("viewer without role resolved %v, expected empty set", ids(got))
	}
	if got := Players(roles, surface, Viewer{LoggedIn: true, Roles: []string{"subscriber"}}); len(got) != 1 {
		t.Errorf("viewer with role resolved %v, expected [p]", ids(got))
	}
}
