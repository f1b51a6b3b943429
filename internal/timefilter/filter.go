// Package timefilter selects subsets of a timestamped item sequence using
// cron-style hour/minute masks over a date span, with either exact or
// nearest-match semantics.
package timefilter

import (
	"fmt"
	"sort"
	"time"

	"lapsed/internal/schedule"
)

// DefaultWindow is the nearest-mode search window used when a spec does not
// set one: a slot with no candidate within this distance yields nothing.
const DefaultWindow = 5 * time.Minute

// Item is one timestamped entry of the input sequence.
type Item struct {
	When time.Time
	Path string
}

// Mode selects the matching semantics.
type Mode string

const (
	// ModeExact keeps items whose minute-truncated timestamp equals a slot.
	ModeExact Mode = "exact"
	// ModeNearest picks, per slot, the single closest item within Window.
	ModeNearest Mode = "nearest"
)

// SpanKind restricts which dates of the input are considered.
type SpanKind string

const (
	SpanAll   SpanKind = "all"
	SpanDate  SpanKind = "date"
	SpanRange SpanKind = "range"
	SpanDates SpanKind = "dates"
)

// Span is the date restriction of a filter. Dates are calendar days in the
// items' own location.
type Span struct {
	Kind  SpanKind
	Date  time.Time   // SpanDate
	From  time.Time   // SpanRange (inclusive; zero = open start)
	To    time.Time   // SpanRange (inclusive; zero = open end)
	Dates []time.Time // SpanDates
}

// Spec describes a time filter. Hours/Minutes are cron-style sub-expression
// texts over [0,23] and [0,59]; empty means "*".
type Spec struct {
	Span    Span
	Hours   string
	Minutes string
	Mode    Mode
	// Window caps the nearest-mode search distance; 0 means DefaultWindow.
	Window time.Duration
}

// compiled is a validated spec ready to scan.
type compiled struct {
	span    Span
	hours   schedule.SubExpr
	minutes schedule.SubExpr
	mode    Mode
	window  time.Duration
}

// Compile validates the spec and parses its masks. It fails fast: an invalid
// spec never reaches a scan.
func (s Spec) Compile() (compiled, error) {
	ht := s.Hours
	if ht == "" {
		ht = "*"
	}
	mt := s.Minutes
	if mt == "" {
		mt = "*"
	}

	hours, err := schedule.Parse(ht, schedule.MinHour, schedule.MaxHour)
	if err != nil {
		return compiled{}, fmt.Errorf("hour mask: %w", err)
	}
	minutes, err := schedule.Parse(mt, schedule.MinMinute, schedule.MaxMinute)
	if err != nil {
		return compiled{}, fmt.Errorf("minute mask: %w", err)
	}

	mode := s.Mode
	if mode == "" {
		mode = ModeExact
	}
	if mode != ModeExact && mode != ModeNearest {
		return compiled{}, fmt.Errorf("invalid mode %q", s.Mode)
	}

	window := s.Window
	if window < 0 {
		return compiled{}, fmt.Errorf("window must not be negative")
	}
	if window == 0 {
		window = DefaultWindow
	}

	span := s.Span
	if span.Kind == "" {
		span.Kind = SpanAll
	}
	switch span.Kind {
	case SpanAll, SpanRange:
	case SpanDate:
		if span.Date.IsZero() {
			return compiled{}, fmt.Errorf("span kind %q requires a date", span.Kind)
		}
	case SpanDates:
		if len(span.Dates) == 0 {
			return compiled{}, fmt.Errorf("span kind %q requires at least one date", span.Kind)
		}
	default:
		return compiled{}, fmt.Errorf("invalid span kind %q", span.Kind)
	}

	return compiled{span: span, hours: hours, minutes: minutes, mode: mode, window: window}, nil
}

// Validate reports whether the spec is well-formed without scanning anything.
func (s Spec) Validate() error {
	_, err := s.Compile()
	return err
}

// Select applies the filter to items and returns the matching subset in
// timestamp order. Empty input yields an empty result; an invalid spec is an
// error before any scan.
func Select(items []Item, spec Spec) ([]Item, error) {
	c, err := spec.Compile()
	if err != nil {
		return nil, err
	}

	kept := c.filterSpan(items)
	if len(kept) == 0 {
		return nil, nil
	}

	// Stable ordering: timestamp, then original input order (kept implicitly
	// by the stable sort).
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].When.Before(kept[j].When) })

	slots := c.slots(kept)

	var out []Item
	if c.mode == ModeExact {
		out = matchExact(kept, slots)
	} else {
		out = matchNearest(kept, slots, c.window)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].When.Before(out[j].When) })
	return out, nil
}

func (c compiled) filterSpan(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if c.inSpan(it.When) {
			out = append(out, it)
		}
	}
	return out
}

func (c compiled) inSpan(t time.Time) bool {
	day := dateOf(t)
	switch c.span.Kind {
	case SpanAll:
		return true
	case SpanDate:
		return day.Equal(dateOf(c.span.Date))
	case SpanRange:
		if !c.span.From.IsZero() && day.Before(dateOf(c.span.From)) {
			return false
		}
		if !c.span.To.IsZero() && day.After(dateOf(c.span.To)) {
			return false
		}
		return true
	case SpanDates:
		for _, d := range c.span.Dates {
			if day.Equal(dateOf(d)) {
				return true
			}
		}
	}
	return false
}

// slots expands the hour x minute cross product over every distinct date of
// the remaining items, in ascending order. Expansion is unbounded: the match
// test must be exact.
func (c compiled) slots(items []Item) []time.Time {
	seen := map[time.Time]bool{}
	var days []time.Time
	for _, it := range items {
		d := dateOf(it.When)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	hours := c.hours.Expand(0)
	minutes := c.minutes.Expand(0)

	slots := make([]time.Time, 0, len(days)*len(hours)*len(minutes))
	for _, day := range days {
		for _, h := range hours {
			for _, m := range minutes {
				slots = append(slots, day.Add(time.Duration(h)*time.Hour+time.Duration(m)*time.Minute))
			}
		}
	}
	return slots
}

// matchExact keeps every item whose minute-truncated timestamp equals a slot.
// Multiple items on the same slot are all kept, in timestamp order.
func matchExact(items []Item, slots []time.Time) []Item {
	slotSet := make(map[time.Time]bool, len(slots))
	for _, s := range slots {
		slotSet[s] = true
	}
	var out []Item
	for _, it := range items {
		if slotSet[it.When.Truncate(time.Minute)] {
			out = append(out, it)
		}
	}
	return out
}

// matchNearest picks, per slot, the unused item with the minimal absolute
// distance, skipping slots whose best candidate is farther than window. Ties
// resolve to the earliest timestamp, then input order (items arrive sorted
// stably, so the first minimal candidate wins both). Each item is selected
// for at most one slot.
func matchNearest(items []Item, slots []time.Time, window time.Duration) []Item {
	used := make([]bool, len(items))
	var out []Item
	for _, slot := range slots {
		best := -1
		var bestDist time.Duration
		for i, it := range items {
			if used[i] {
				continue
			}
			d := it.When.Sub(slot)
			if d < 0 {
				d = -d
			}
			if d > window {
				continue
			}
			if best == -1 || d < bestDist {
				best = i
				bestDist = d
			}
		}
		if best >= 0 {
			used[best] = true
			out = append(out, items[best])
		}
	}
	return out
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
