package playback

import "sync"

// FakePlayer is an in-memory Player implementation for tests and host
// integrations that have no real media element yet.
type FakePlayer struct {
	mu sync.Mutex

	PlayerID   string
	Containers []string
	IsSticky   bool

	Track     Track
	Pos       float64
	Dur       float64
	IsPaused  bool
	Vol       float64
	Seeks     []float64
	NextCalls int
	EndSeeks  int
}

// NewFakePlayer returns a playing fake with full volume. An empty id gets a
// generated one.
func NewFakePlayer(id string) *FakePlayer {
	if id == "" {
		id = NewPlayerID()
	}
	return &FakePlayer{PlayerID: id, Vol: 1.0}
}

func (f *FakePlayer) ID() string { return f.PlayerID }

func (f *FakePlayer) ContainerChain() []string { return f.Containers }

func (f *FakePlayer) Sticky() bool { return f.IsSticky }

func (f *FakePlayer) CurrentTrack() Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Track
}

func (f *FakePlayer) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pos
}

func (f *FakePlayer) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Dur
}

func (f *FakePlayer) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.IsPaused
}

func (f *FakePlayer) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Vol
}

func (f *FakePlayer) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Vol = v
}

func (f *FakePlayer) Seek(position float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pos = position
	f.Seeks = append(f.Seeks, position)
}

func (f *FakePlayer) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IsPaused = true
}

func (f *FakePlayer) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IsPaused = false
}

func (f *FakePlayer) NextTrack() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NextCalls++
}

func (f *FakePlayer) SeekToEnd() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EndSeeks++
	f.Pos = f.Dur
}

// SetTrack switches the fake's current track.
func (f *FakePlayer) SetTrack(t Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Track = t
}

// SetPosition moves the playhead without recording a seek.
func (f *FakePlayer) SetPosition(pos float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pos = pos
}

// SetDuration sets the known media duration (0 = still loading).
func (f *FakePlayer) SetDuration(d float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dur = d
}
