package scenario

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a scenario definition file.
type File struct {
	Scenarios []Entry `yaml:"scenarios"`
}

// Entry is one authored scenario as it appears in YAML. Optional fields
// default to empty/false; normalization turns entries into typed Scenarios.
type Entry struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	ModifiedAt string        `yaml:"modified_at"`
	Condition  ConditionYAML `yaml:"condition"`
	Actions    []ActionYAML  `yaml:"actions"`
	ApplyFor   ApplyForYAML  `yaml:"apply_for"`
	ApplyOn    ApplyOnYAML   `yaml:"apply_on"`
	ExcludeOn  []string      `yaml:"exclude_on"`
	Once       OnceYAML      `yaml:"once"`
	Advanced   AdvancedYAML  `yaml:"advanced"`
}

// ConditionYAML mirrors Condition in authored form.
type ConditionYAML struct {
	ReachedValue    float64 `yaml:"reached_value"`
	ReachedUnit     string  `yaml:"reached_unit"`
	Required        bool    `yaml:"required"`
	DownloadClicked bool    `yaml:"download_clicked"`
}

// ActionYAML is one authored action. Type selects the kind; the remaining
// fields are read per kind and ignored otherwise.
type ActionYAML struct {
	Type string `yaml:"type"`

	// trim
	StartTime float64 `yaml:"start_time"`
	Duration  float64 `yaml:"duration"`
	FadeIn    bool    `yaml:"fade_in"`
	FadeOut   bool    `yaml:"fade_out"`

	// interstitial / watermark / redirect
	URL          string  `yaml:"url"`
	LockControls bool    `yaml:"lock_controls"`
	Message      string  `yaml:"message"`
	LoopGap      float64 `yaml:"loop_gap_seconds"`
	Volume       float64 `yaml:"volume"`
	Target       string  `yaml:"target"`
	StopPlayer   bool    `yaml:"stop_player"`

	// popup / scroll
	Hook     string `yaml:"hook"`
	PopupID  string `yaml:"popup_id"`
	Content  string `yaml:"content"`
	TargetID string `yaml:"target_id"`
}

// ApplyForYAML mirrors ApplyFor in authored form.
type ApplyForYAML struct {
	Audience string   `yaml:"audience"`
	Roles    []string `yaml:"roles"`
}

// ApplyOnYAML mirrors ApplyOn in authored form.
type ApplyOnYAML struct {
	Containers []string `yaml:"containers"`
	TrackIDs   []string `yaml:"tracks"`
}

// OnceYAML mirrors OnceRules in authored form.
type OnceYAML struct {
	PerTrackUntilRefresh  bool `yaml:"per_track_until_refresh"`
	PerPlayerUntilRefresh bool `yaml:"per_player_until_refresh"`
	UntilStoreCleared     bool `yaml:"until_store_cleared"`
	AnySubmittedAnywhere  bool `yaml:"any_submitted_anywhere"`
}

// AdvancedYAML mirrors AdvancedRules in authored form.
type AdvancedYAML struct {
	ApplyAfter    int    `yaml:"apply_after"`
	ApplyMaxTimes int    `yaml:"apply_max_times"`
	TimeSpan      string `yaml:"time_span"`
}

// Loader loads scenario definitions from YAML.
type Loader struct {
	// StrictVersioning keeps ModifiedAt as the sole invalidation authority.
	// When false the advanced-rule values are folded into the version stamp.
	StrictVersioning bool
}

// NewLoader returns a loader with strict versioning enabled.
func NewLoader() *Loader {
	return &Loader{StrictVersioning: true}
}

// Load reads and normalizes a scenario file. A malformed entry is skipped
// with a warning rather than aborting the whole batch; only an unreadable or
// unparseable file is an error.
func (l *Loader) Load(path string) ([]*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return l.Parse(data)
}

// Parse normalizes scenario definitions from raw YAML. Environment variables
// in the form ${VAR} or ${VAR:default} are expanded first.
func (l *Loader) Parse(data []byte) ([]*Scenario, error) {
	expanded := expandEnvVars(string(data))

	var file File
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	seen := make(map[string]bool)
	var scenarios []*Scenario
	for i, entry := range file.Scenarios {
		sc, err := l.normalize(entry)
		if err != nil {
			logrus.Warnf("skipping malformed scenario %q (entry %d): %v", entry.ID, i, err)
			continue
		}
		if seen[sc.ID] {
			logrus.Warnf("skipping scenario with duplicate id %q (entry %d)", sc.ID, i)
			continue
		}
		seen[sc.ID] = true
		scenarios = append(scenarios, sc)
	}

	logrus.Infof("loaded %d scenarios (%d entries)", len(scenarios), len(file.Scenarios))
	return scenarios, nil
}

func (l *Loader) normalize(entry Entry) (*Scenario, error) {
	if entry.ID == "" {
		return nil, fmt.Errorf("scenario has empty id")
	}

	cond, err := normalizeCondition(entry.Condition)
	if err != nil {
		return nil, err
	}

	if len(entry.Actions) == 0 {
		return nil, fmt.Errorf("scenario has no actions")
	}
	actions := make([]Action, 0, len(entry.Actions))
	for _, a := range entry.Actions {
		action, err := normalizeAction(a)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	audience := Audience(entry.ApplyFor.Audience)
	switch audience {
	case "":
		audience = AudienceEverybody
	case AudienceEverybody, AudienceLoggedIn, AudienceLoggedOut, AudienceRoles:
	default:
		return nil, fmt.Errorf("unknown audience %q", entry.ApplyFor.Audience)
	}

	adv := AdvancedRules{
		ApplyAfter:    entry.Advanced.ApplyAfter,
		ApplyMaxTimes: entry.Advanced.ApplyMaxTimes,
		TimeSpan:      TimeSpan(entry.Advanced.TimeSpan),
	}
	if adv.ApplyAfter > 0 && adv.ApplyMaxTimes > 0 {
		return nil, fmt.Errorf("apply_after and apply_max_times are mutually exclusive")
	}
	if adv.Enabled() && adv.TimeSpan == "" {
		adv.TimeSpan = SpanPersistent
	}

	sc := &Scenario{
		ID:         entry.ID,
		Name:       entry.Name,
		ModifiedAt: entry.ModifiedAt,
		Condition:  cond,
		Actions:    actions,
		ApplyFor:   ApplyFor{Audience: audience, Roles: entry.ApplyFor.Roles},
		ApplyOn: ApplyOn{
			AllPlayers: len(entry.ApplyOn.Containers) == 0,
			Containers: entry.ApplyOn.Containers,
			TrackIDs:   entry.ApplyOn.TrackIDs,
		},
		ExcludeOn: entry.ExcludeOn,
		Once: OnceRules{
			PerTrackUntilRefresh:  entry.Once.PerTrackUntilRefresh,
			PerPlayerUntilRefresh: entry.Once.PerPlayerUntilRefresh,
			UntilStoreCleared:     entry.Once.UntilStoreCleared,
			AnySubmittedAnywhere:  entry.Once.AnySubmittedAnywhere,
		},
		Advanced: adv,
	}
	sc.Version = l.versionStamp(sc)
	return sc, nil
}

func (l *Loader) versionStamp(sc *Scenario) string {
	if l.StrictVersioning {
		return sc.ModifiedAt
	}
	return fmt.Sprintf("%s|after=%d|max=%d|span=%s",
		sc.ModifiedAt, sc.Advanced.ApplyAfter, sc.Advanced.ApplyMaxTimes, sc.Advanced.TimeSpan)
}

func normalizeCondition(c ConditionYAML) (Condition, error) {
	if c.DownloadClicked {
		if c.ReachedUnit != "" {
			return Condition{}, fmt.Errorf("condition cannot be both time-based and event-based")
		}
		return Condition{DownloadClicked: true}, nil
	}

	unit := Unit(c.ReachedUnit)
	switch unit {
	case UnitPercent, UnitSeconds:
	case "":
		unit = UnitPercent
	default:
		return Condition{}, fmt.Errorf("unknown condition unit %q", c.ReachedUnit)
	}
	if c.ReachedValue < 0 {
		return Condition{}, fmt.Errorf("negative condition value %v", c.ReachedValue)
	}
	if unit == UnitPercent && c.ReachedValue > 100 {
		return Condition{}, fmt.Errorf("percent condition value %v out of range", c.ReachedValue)
	}

	return Condition{
		ReachedValue: c.ReachedValue,
		Unit:         unit,
		Required:     c.Required,
	}, nil
}

func normalizeAction(a ActionYAML) (Action, error) {
	switch ActionKind(a.Type) {
	case KindTrim:
		if a.Duration <= 0 {
			return Action{}, fmt.Errorf("trim action requires a positive duration")
		}
		return Action{Kind: KindTrim, Trim: &TrimParams{
			StartTime: a.StartTime,
			Duration:  a.Duration,
			FadeIn:    a.FadeIn,
			FadeOut:   a.FadeOut,
		}}, nil
	case KindInterstitial:
		if a.URL == "" {
			return Action{}, fmt.Errorf("interstitial action requires a url")
		}
		return Action{Kind: KindInterstitial, Interstitial: &InterstitialParams{
			URL:          a.URL,
			LockControls: a.LockControls,
			Message:      a.Message,
		}}, nil
	case KindWatermark:
		if a.URL == "" {
			return Action{}, fmt.Errorf("watermark action requires a url")
		}
		p := &WatermarkParams{URL: a.URL, LoopGapSeconds: a.LoopGap, Volume: a.Volume}
		if p.LoopGapSeconds <= 0 {
			p.LoopGapSeconds = 30
		}
		if p.Volume <= 0 || p.Volume > 1 {
			p.Volume = 0.5
		}
		return Action{Kind: KindWatermark, Watermark: p}, nil
	case KindPopup:
		if a.PopupID == "" && a.Content == "" {
			return Action{}, fmt.Errorf("popup action requires popup_id or content")
		}
		return Action{Kind: KindPopup, Popup: &PopupParams{
			Hook:    a.Hook,
			PopupID: a.PopupID,
			Content: a.Content,
		}}, nil
	case KindRedirect:
		if a.URL == "" {
			return Action{}, fmt.Errorf("redirect action requires a url")
		}
		return Action{Kind: KindRedirect, Redirect: &RedirectParams{
			URL:        a.URL,
			Target:     a.Target,
			StopPlayer: a.StopPlayer,
		}}, nil
	case KindScroll:
		if a.TargetID == "" {
			return Action{}, fmt.Errorf("scroll action requires a target_id")
		}
		return Action{Kind: KindScroll, Scroll: &ScrollParams{
			TargetID:   a.TargetID,
			StopPlayer: a.StopPlayer,
		}}, nil
	case KindDownloadGate:
		return Action{Kind: KindDownloadGate, DownloadGate: &DownloadGateParams{}}, nil
	}
	return Action{}, fmt.Errorf("unknown action type %q", a.Type)
}

// expandEnvVars expands environment variables in the format ${VAR} or
// ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) == 2 {
			defaultValue = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}
