package schedule

import (
	"testing"
	"time"
)

func TestCronMatches(t *testing.T) {
	t.Parallel()
	e, err := NewCron("0", "*/15", "22-23,0-2")
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}

	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		wantHour := h >= 22 || h <= 2
		got := e.Matches(time.Date(2026, 3, 10, h, 15, 0, 0, time.UTC), time.Second)
		if got != wantHour {
			t.Fatalf("hour %d: Matches = %v, want %v", h, got, wantHour)
		}
	}
	if e.Matches(base.Add(7*time.Minute), time.Second) {
		t.Fatal("matched minute 7 under */15 mask")
	}
	if e.Matches(time.Date(2026, 3, 10, 23, 30, 1, 0, time.UTC), time.Second) {
		t.Fatal("matched second 1 under second mask 0")
	}
}

func TestIntervalAnchoredSamples(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	e, err := NewInterval(15, UnitMinutes, anchor)
	if err != nil {
		t.Fatalf("NewInterval error: %v", err)
	}

	for k := 0; k < 10; k++ {
		at := anchor.Add(time.Duration(k) * 15 * time.Minute)
		if !e.Matches(at, time.Second) {
			t.Fatalf("sample k=%d at %v did not match", k, at)
		}
		if e.Matches(at.Add(time.Second), time.Second) {
			t.Fatalf("off-sample instant matched at k=%d", k)
		}
	}

	// Instants before the anchor never match.
	if e.Matches(anchor.Add(-15*time.Minute), time.Second) {
		t.Fatal("matched before anchor")
	}
}

func TestIntervalMatchesWithinTickWindow(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	e, err := NewInterval(30, UnitSeconds, anchor)
	if err != nil {
		t.Fatalf("NewInterval error: %v", err)
	}
	// A tick observed mid-second still matches: granularity is the tick, not
	// the exact microsecond.
	at := anchor.Add(60*time.Second + 400*time.Millisecond)
	if !e.Matches(at, time.Second) {
		t.Fatal("sub-second offset broke the tick-window match")
	}
}

func TestNewIntervalValidation(t *testing.T) {
	t.Parallel()
	anchor := time.Now()
	if _, err := NewInterval(0, UnitMinutes, anchor); err == nil {
		t.Fatal("amount 0 accepted")
	}
	if _, err := NewInterval(-3, UnitMinutes, anchor); err == nil {
		t.Fatal("negative amount accepted")
	}
	if _, err := NewInterval(5, Unit("days"), anchor); err == nil {
		t.Fatal("bad unit accepted")
	}
	if _, err := NewInterval(5, UnitMinutes, time.Time{}); err == nil {
		t.Fatal("zero anchor accepted")
	}
}

func TestExpressionRoundTrip(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	cronExpr, err := NewCron("0", "*/10", "6-20")
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}
	intervalExpr, err := NewInterval(2, UnitHours, anchor)
	if err != nil {
		t.Fatalf("NewInterval error: %v", err)
	}

	for _, e := range []Expression{cronExpr, intervalExpr} {
		back, err := ParseExpression(e.String())
		if err != nil {
			t.Fatalf("ParseExpression(%q) error: %v", e.String(), err)
		}
		if !back.Equal(e) {
			t.Fatalf("round trip of %q changed the schedule", e.String())
		}
	}
}

func TestParseExpressionInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"* *",             // too few fields
		"* * * *",         // too many fields
		"every:15m",       // missing anchor
		"every:m@2026-03-10T08:00:00Z", // missing amount
		"every:15d@2026-03-10T08:00:00Z",
		"every:15m@yesterday",
	} {
		if _, err := ParseExpression(raw); err == nil {
			t.Fatalf("ParseExpression(%q) succeeded, want error", raw)
		}
	}
}

func TestHourWindow(t *testing.T) {
	t.Parallel()
	wrap, err := HourWindow(22, 2)
	if err != nil {
		t.Fatalf("HourWindow(22,2) error: %v", err)
	}
	if wrap.String() != "22-23,0-2" {
		t.Fatalf("HourWindow(22,2) = %q, want %q", wrap.String(), "22-23,0-2")
	}
	for h := 0; h <= 23; h++ {
		want := h >= 22 || h <= 2
		if wrap.Matches(h) != want {
			t.Fatalf("hour %d: Matches = %v, want %v", h, wrap.Matches(h), want)
		}
	}

	all, err := HourWindow(0, 0)
	if err != nil {
		t.Fatalf("HourWindow(0,0) error: %v", err)
	}
	if all.String() != "*" {
		t.Fatalf("HourWindow(0,0) = %q, want *", all.String())
	}

	if _, err := HourWindow(9, 9); err == nil {
		t.Fatal("ambiguous from==to accepted")
	}
	if _, err := HourWindow(25, 2); err == nil {
		t.Fatal("out-of-range window start accepted")
	}
}

func TestWindowRecovery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text     string
		from, to int
		ok       bool
	}{
		{text: "*", from: 0, to: 0, ok: true},
		{text: "6-18", from: 6, to: 18, ok: true},
		{text: "22-23,0-2", from: 22, to: 2, ok: true},
		{text: "6,18", ok: false},     // explicit list: not reconstructible
		{text: "*/2", ok: false},      // step: not reconstructible
		{text: "8-17/3", ok: false},   // stepped range
		{text: "1-5,7-9", ok: false},  // two ranges that are not a wraparound
	}
	for _, tt := range tests {
		x, err := Parse(tt.text, MinHour, MaxHour)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.text, err)
		}
		from, to, ok := x.Window()
		if ok != tt.ok {
			t.Fatalf("Window(%q) ok = %v, want %v", tt.text, ok, tt.ok)
		}
		if ok && (from != tt.from || to != tt.to) {
			t.Fatalf("Window(%q) = %d,%d, want %d,%d", tt.text, from, to, tt.from, tt.to)
		}
	}
}

func TestNextRuns(t *testing.T) {
	t.Parallel()
	from := time.Date(2026, 3, 10, 7, 59, 0, 0, time.UTC)

	cronExpr, err := NewCron("0", "0", "8-10")
	if err != nil {
		t.Fatalf("NewCron error: %v", err)
	}
	runs, err := cronExpr.NextRuns(from, 3)
	if err != nil {
		t.Fatalf("NextRuns error: %v", err)
	}
	want := []time.Time{
		time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	if len(runs) != len(want) {
		t.Fatalf("NextRuns returned %d instants, want %d", len(runs), len(want))
	}
	for i := range want {
		if !runs[i].Equal(want[i]) {
			t.Fatalf("run %d = %v, want %v", i, runs[i], want[i])
		}
	}

	anchor := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	iv, err := NewInterval(15, UnitMinutes, anchor)
	if err != nil {
		t.Fatalf("NewInterval error: %v", err)
	}
	ivRuns, err := iv.NextRuns(anchor.Add(time.Minute), 2)
	if err != nil {
		t.Fatalf("interval NextRuns error: %v", err)
	}
	if len(ivRuns) != 2 || !ivRuns[0].Equal(anchor.Add(15*time.Minute)) || !ivRuns[1].Equal(anchor.Add(30*time.Minute)) {
		t.Fatalf("interval NextRuns = %v", ivRuns)
	}
}
