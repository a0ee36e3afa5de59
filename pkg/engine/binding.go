package engine

import "github.com/wavemark/playback-triggers/pkg/scenario"

// bindingState is the explicit lifecycle state of one scenario-player
// binding. Transitions are driven by playback events only.
type bindingState int

const (
	stateIdle bindingState = iota
	stateArmed
	statePlaying
	stateFiring
)

func (s bindingState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateArmed:
		return "armed"
	case statePlaying:
		return "playing"
	case stateFiring:
		return "firing"
	}
	return "unknown"
}

// binding is the runtime association of one scenario to one live player.
type binding struct {
	scenario *scenario.Scenario
	playerID string
	state    bindingState

	// lastTrackID detects track switches, which force a full reset of the
	// edge detector and any transient effect state.
	lastTrackID string

	// hasTriggered is the edge detector for required (level-triggered)
	// conditions: set on fire, cleared when the position drops back below
	// the threshold.
	hasTriggered bool

	// pulseFired latches non-required (pulse) conditions per track, so
	// seeking across the threshold repeatedly within one track fires at
	// most once. The latch for a track is dropped when switching away.
	pulseFired map[string]bool
}

func newBinding(sc *scenario.Scenario, playerID string) *binding {
	return &binding{
		scenario:   sc,
		playerID:   playerID,
		state:      stateArmed,
		pulseFired: make(map[string]bool),
	}
}

func bindingKey(scenarioID, playerID string) string {
	return scenarioID + "|" + playerID
}
