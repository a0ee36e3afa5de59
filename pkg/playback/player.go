// Package playback defines the media-player collaborator surface the trigger
// engine evaluates against. The rendering layer is external; the engine only
// sees playable handles, positions, durations and discrete events.
package playback

import (
	"strconv"

	"github.com/google/uuid"
)

// Track identifies one playable item. Tracks may lack a stable explicit ID,
// so identity resolution falls back through the source content ID and
// finally the positional index.
type Track struct {
	ID       string
	SourceID string
	Index    int
}

// Identity resolves the track identity in priority order: explicit ID, then
// source content ID, then positional index.
func (t Track) Identity() string {
	if t.ID != "" {
		return t.ID
	}
	if t.SourceID != "" {
		return t.SourceID
	}
	return "idx:" + strconv.Itoa(t.Index)
}

// Player is one live player instance exposed by the media layer.
// Position and Duration are in seconds; Duration returns 0 while unknown
// (media still loading). Volume is in [0, 1].
type Player interface {
	ID() string

	// ContainerChain returns the identifiers of the player's ancestor
	// containers, innermost first. Used for target and exclusion filters.
	ContainerChain() []string

	// Sticky reports whether this is a persistent player singleton that can
	// become the active player for any track.
	Sticky() bool

	CurrentTrack() Track
	Position() float64
	Duration() float64
	Paused() bool

	Volume() float64
	SetVolume(v float64)
	Seek(position float64)
	Pause()
	Resume()

	// NextTrack advances to the next track in the player's list.
	NextTrack()
	// SeekToEnd jumps to end-of-media, letting the player run its natural
	// end-of-track handling.
	SeekToEnd()
}

// NewPlayerID returns a fresh identifier for hosts that do not assign their
// own player instance IDs.
func NewPlayerID() string {
	return uuid.NewString()
}
