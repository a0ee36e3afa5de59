package playback

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Surface tracks the set of live player instances and which of them is the
// globally active one. The host media layer registers players as they are
// created and destroyed; the engine resolves scenarios against the surface.
type Surface struct {
	mu       sync.RWMutex
	players  map[string]Player
	order    []string
	activeID string
}

// NewSurface returns an empty surface.
func NewSurface() *Surface {
	return &Surface{
		players: make(map[string]Player),
	}
}

// Add registers a live player. Re-adding an existing ID replaces the handle.
func (s *Surface) Add(p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[p.ID()]; !exists {
		s.order = append(s.order, p.ID())
	}
	s.players[p.ID()] = p
	logrus.Debugf("surface: added player %s (sticky=%v)", p.ID(), p.Sticky())
}

// Remove unregisters a player, e.g. when its container is torn down.
func (s *Surface) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[id]; !exists {
		return
	}
	delete(s.players, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
	}
}

// Get returns a player by ID, or nil if it is not live.
func (s *Surface) Get(id string) Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.players[id]
}

// Players returns all live players in registration order.
func (s *Surface) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

// SetActive marks the player that currently owns audio output.
func (s *Surface) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = id
}

// ActiveID returns the ID of the globally active player, or empty.
func (s *Surface) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeID
}

// IsActive reports whether the given player owns audio output. When no
// active player has been set yet, every player counts as active.
func (s *Surface) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeID == "" || s.activeID == id
}

// Count returns the number of live players.
func (s *Surface) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.players)
}
