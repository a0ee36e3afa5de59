package playback

// EventType identifies a discrete playback lifecycle event.
type EventType string

const (
	EventPlay          EventType = "play"
	EventPause         EventType = "pause"
	EventEnded         EventType = "ended"
	EventProgress      EventType = "progress"
	EventDownloadClick EventType = "download_click"
)

// Event is one discrete playback event delivered in-process to the engine.
// Position and Duration snapshot the player at emission time; TrackID is set
// on download clicks when the clicked control targets a specific track.
type Event struct {
	Type     EventType
	PlayerID string
	Position float64
	Duration float64
	TrackID  string
}
