package scenario

import (
	"testing"
	"time"
)

func TestConditionThreshold(t *testing.T) {
	percent := Condition{ReachedValue: 50, Unit: UnitPercent}

	got, ok := percent.Threshold(120)
	if !ok || got != 60 {
		t.Errorf("Threshold(120) = %v, %v; expected 60, true", got, ok)
	}

	// Percent thresholds are undefined while the duration is unknown.
	if _, ok := percent.Threshold(0); ok {
		t.Error("expected no threshold for percent condition with unknown duration")
	}

	seconds := Condition{ReachedValue: 45, Unit: UnitSeconds}
	got, ok = seconds.Threshold(0)
	if !ok || got != 45 {
		t.Errorf("Threshold(0) = %v, %v; expected 45, true", got, ok)
	}

	event := Condition{DownloadClicked: true}
	if _, ok := event.Threshold(120); ok {
		t.Error("expected no threshold for event-based condition")
	}
}

func TestCrossesPulse(t *testing.T) {
	cases := []struct {
		position  float64
		threshold float64
		want      bool
	}{
		{59.9, 60, false},
		{60.0, 60, true},
		{60.4, 60, true},
		{60.999, 60, true},
		{61.0, 60, false},
		{12.5, 12.2, true},
	}
	for _, tc := range cases {
		if got := CrossesPulse(tc.position, tc.threshold); got != tc.want {
			t.Errorf("CrossesPulse(%v, %v) = %v, expected %v", tc.position, tc.threshold, got, tc.want)
		}
	}
}

func TestTimeSpanDuration(t *testing.T) {
	if d, ok := SpanWeek.Duration(); !ok || d != 7*24*time.Hour {
		t.Errorf("SpanWeek.Duration() = %v, %v", d, ok)
	}
	if _, ok := SpanPersistent.Duration(); ok {
		t.Error("expected persistent span to never expire")
	}
	if _, ok := TimeSpan("").Duration(); ok {
		t.Error("expected empty span to never expire")
	}
}

func TestTrackIDFilter(t *testing.T) {
	on := ApplyOn{TrackIDs: []string{"t1", "t2"}}
	if !on.MatchesTrack("t1") {
		t.Error("expected t1 to match")
	}
	if on.MatchesTrack("t3") {
		t.Error("expected t3 not to match")
	}
	if !(ApplyOn{}).MatchesTrack("anything") {
		t.Error("expected empty filter to match every track")
	}
}
