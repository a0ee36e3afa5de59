package scenario

import (
	"math"
	"time"
)

// ActionKind identifies one effect type in a scenario's action list.
type ActionKind string

const (
	KindTrim         ActionKind = "trim"
	KindInterstitial ActionKind = "interstitial"
	KindWatermark    ActionKind = "watermark"
	KindPopup        ActionKind = "popup"
	KindRedirect     ActionKind = "redirect"
	KindScroll       ActionKind = "scroll"
	KindDownloadGate ActionKind = "download_gate"
)

// Unit is the measurement unit of a time-based condition threshold.
type Unit string

const (
	UnitPercent Unit = "percent"
	UnitSeconds Unit = "seconds"
)

// Condition describes when a scenario fires. Either a playback-position
// threshold (ReachedValue/Unit/Required) or a download-click event
// (DownloadClicked), never both.
type Condition struct {
	ReachedValue    float64
	Unit            Unit
	Required        bool
	DownloadClicked bool
}

// Threshold converts the condition into an absolute media position for the
// given track duration. Returns false when no threshold can be computed yet
// (event-based condition, or percent unit with unknown duration).
func (c Condition) Threshold(duration float64) (float64, bool) {
	if c.DownloadClicked {
		return 0, false
	}
	switch c.Unit {
	case UnitPercent:
		if duration <= 0 {
			return 0, false
		}
		return duration * c.ReachedValue / 100, true
	case UnitSeconds:
		return c.ReachedValue, true
	}
	return 0, false
}

// CrossesPulse reports whether a non-required condition pulses at the given
// position: the floor of the position equals the floor of the threshold.
func CrossesPulse(position, threshold float64) bool {
	return math.Floor(position) == math.Floor(threshold)
}

// Action is a tagged union of effect kinds. Kind selects which parameter
// struct is populated; the dispatcher switches over Kind exhaustively.
type Action struct {
	Kind         ActionKind
	Trim         *TrimParams
	Interstitial *InterstitialParams
	Watermark    *WatermarkParams
	Popup        *PopupParams
	Redirect     *RedirectParams
	Scroll       *ScrollParams
	DownloadGate *DownloadGateParams
}

// TrimParams restricts playback to the segment [StartTime, StartTime+Duration].
type TrimParams struct {
	StartTime float64
	Duration  float64
	FadeIn    bool
	FadeOut   bool
}

// End returns the absolute media position where the trim segment ends.
func (p TrimParams) End() float64 {
	return p.StartTime + p.Duration
}

// InterstitialParams plays an audio interstitial over the paused primary track.
type InterstitialParams struct {
	URL          string
	LockControls bool
	Message      string
}

// WatermarkParams loops a short watermark clip at a fixed wall-clock interval
// while the primary track plays. Volume is a fraction of the primary volume.
type WatermarkParams struct {
	URL            string
	LoopGapSeconds float64
	Volume         float64
}

// PopupParams delegates to the lead-capture collaborator. Either PopupID
// references a pre-authored popup or Content carries inline markup.
type PopupParams struct {
	Hook    string
	PopupID string
	Content string
}

// RedirectParams navigates away, optionally pausing playback first.
type RedirectParams struct {
	URL        string
	Target     string
	StopPlayer bool
}

// ScrollParams scrolls the host surface to a target, optionally pausing first.
type ScrollParams struct {
	TargetID   string
	StopPlayer bool
}

// DownloadGateParams gates download controls behind the scenario's popup.
type DownloadGateParams struct{}

// Audience selects which viewers a scenario applies to.
type Audience string

const (
	AudienceEverybody Audience = "everybody"
	AudienceLoggedIn  Audience = "logged_in"
	AudienceLoggedOut Audience = "logged_out"
	AudienceRoles     Audience = "roles"
)

// ApplyFor is the audience filter of a scenario.
type ApplyFor struct {
	Audience Audience
	Roles    []string
}

// ApplyOn is the target filter: all live players, players nested inside named
// containers, or specific track identifiers (which fall back to all players
// and are filtered per track inside the evaluator).
type ApplyOn struct {
	AllPlayers bool
	Containers []string
	TrackIDs   []string
}

// MatchesTrack reports whether the given track identity passes the
// specific-track filter. An empty filter matches every track.
func (a ApplyOn) MatchesTrack(trackID string) bool {
	if len(a.TrackIDs) == 0 {
		return true
	}
	for _, id := range a.TrackIDs {
		if id == trackID {
			return true
		}
	}
	return false
}

// OnceRules controls how firing is remembered.
type OnceRules struct {
	PerTrackUntilRefresh  bool
	PerPlayerUntilRefresh bool
	UntilStoreCleared     bool
	AnySubmittedAnywhere  bool
}

// Persists reports whether any rule requires durable action records.
func (o OnceRules) Persists() bool {
	return o.UntilStoreCleared || o.AnySubmittedAnywhere
}

// TimeSpan is the expiration window of the cross-track global counter.
type TimeSpan string

const (
	SpanMinute     TimeSpan = "minute"
	SpanHour       TimeSpan = "hour"
	SpanDay        TimeSpan = "day"
	SpanWeek       TimeSpan = "week"
	SpanMonth      TimeSpan = "month"
	SpanPersistent TimeSpan = "persistent"
)

// Duration returns the wall-clock length of the span. Persistent (and empty)
// spans return false: the counter never expires.
func (s TimeSpan) Duration() (time.Duration, bool) {
	switch s {
	case SpanMinute:
		return time.Minute, true
	case SpanHour:
		return time.Hour, true
	case SpanDay:
		return 24 * time.Hour, true
	case SpanWeek:
		return 7 * 24 * time.Hour, true
	case SpanMonth:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// AdvancedRules throttle a scenario across tracks and players. ApplyAfter and
// ApplyMaxTimes are mutually exclusive; zero means unset.
type AdvancedRules struct {
	ApplyAfter    int
	ApplyMaxTimes int
	TimeSpan      TimeSpan
}

// Enabled reports whether any cross-track throttling policy is configured.
func (a AdvancedRules) Enabled() bool {
	return a.ApplyAfter > 0 || a.ApplyMaxTimes > 0
}

// Scenario is one authored, immutable-per-version trigger rule.
type Scenario struct {
	ID         string
	Name       string
	ModifiedAt string
	Condition  Condition
	Actions    []Action
	ApplyFor   ApplyFor
	ApplyOn    ApplyOn
	ExcludeOn  []string
	Once       OnceRules
	Advanced   AdvancedRules

	// Version is the stamp persisted state is keyed against. Under strict
	// versioning it equals ModifiedAt; otherwise the loader folds the
	// advanced-rule values in so editing them also invalidates.
	Version string
}

// HasAction reports whether the scenario carries an action of the given kind.
func (s *Scenario) HasAction(kind ActionKind) bool {
	_, ok := s.Action(kind)
	return ok
}

// Action returns the first action of the given kind.
func (s *Scenario) Action(kind ActionKind) (*Action, bool) {
	for i := range s.Actions {
		if s.Actions[i].Kind == kind {
			return &s.Actions[i], true
		}
	}
	return nil, false
}
