package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the two schedule kinds.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindInterval {
		return "interval"
	}
	return "cron"
}

// Unit is the interval unit.
type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
)

// ParseUnit accepts the long form used in config plus the single-letter
// suffix used in serialized interval expressions.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "sec", "second", "seconds":
		return UnitSeconds, nil
	case "m", "min", "minute", "minutes":
		return UnitMinutes, nil
	case "h", "hour", "hours":
		return UnitHours, nil
	}
	return "", fmt.Errorf("invalid interval unit %q", s)
}

func (u Unit) duration() time.Duration {
	switch u {
	case UnitSeconds:
		return time.Second
	case UnitMinutes:
		return time.Minute
	case UnitHours:
		return time.Hour
	}
	return 0
}

func (u Unit) suffix() string {
	switch u {
	case UnitMinutes:
		return "m"
	case UnitHours:
		return "h"
	}
	return "s"
}

// Expression is one immutable schedule: either cron-style (second/minute/hour
// sub-expressions) or an anchored interval. Exactly the fields for its Kind
// are meaningful. Disabled expressions are stored but never matched by the
// scheduler.
type Expression struct {
	Kind    Kind
	Enabled bool

	// cron kind
	Second SubExpr
	Minute SubExpr
	Hour   SubExpr

	// interval kind
	Amount int
	Unit   Unit
	Anchor time.Time
}

// NewCron builds a cron-kind expression from the three field texts.
func NewCron(second, minute, hour string) (Expression, error) {
	sec, err := Parse(second, MinSecond, MaxSecond)
	if err != nil {
		return Expression{}, fmt.Errorf("second: %w", err)
	}
	min, err := Parse(minute, MinMinute, MaxMinute)
	if err != nil {
		return Expression{}, fmt.Errorf("minute: %w", err)
	}
	hr, err := Parse(hour, MinHour, MaxHour)
	if err != nil {
		return Expression{}, fmt.Errorf("hour: %w", err)
	}
	return Expression{Kind: KindCron, Enabled: true, Second: sec, Minute: min, Hour: hr}, nil
}

// NewInterval builds an interval-kind expression anchored at anchor. The
// anchor is truncated to whole seconds; sample k fires at anchor + k*period.
func NewInterval(amount int, unit Unit, anchor time.Time) (Expression, error) {
	if amount <= 0 {
		return Expression{}, fmt.Errorf("interval amount must be positive, got %d", amount)
	}
	if unit.duration() == 0 {
		return Expression{}, fmt.Errorf("invalid interval unit %q", unit)
	}
	if anchor.IsZero() {
		return Expression{}, fmt.Errorf("interval anchor is required")
	}
	return Expression{
		Kind:    KindInterval,
		Enabled: true,
		Amount:  amount,
		Unit:    unit,
		Anchor:  anchor.Truncate(time.Second),
	}, nil
}

// Period returns the interval duration (zero for cron kind).
func (e Expression) Period() time.Duration {
	if e.Kind != KindInterval {
		return 0
	}
	return time.Duration(e.Amount) * e.Unit.duration()
}

// Matches reports whether instant satisfies the expression, evaluated at the
// matcher's tick granularity. It is pure: no state changes on either outcome.
//
// Cron kind: the instant's second, minute and hour components must each
// satisfy their sub-expression.
//
// Interval kind: true iff instant-anchor is a non-negative whole multiple of
// the period once both are truncated to the tick, i.e. the match fires within
// the tick window containing each anchored sample, not at an exact microsecond.
func (e Expression) Matches(instant time.Time, tick time.Duration) bool {
	switch e.Kind {
	case KindCron:
		return e.Second.Matches(instant.Second()) &&
			e.Minute.Matches(instant.Minute()) &&
			e.Hour.Matches(instant.Hour())
	case KindInterval:
		if tick <= 0 {
			tick = time.Second
		}
		period := e.Period()
		if period <= 0 {
			return false
		}
		d := instant.Truncate(tick).Sub(e.Anchor.Truncate(tick))
		if d < 0 {
			return false
		}
		return d%period == 0
	}
	return false
}

// String serializes the expression. Cron kind renders as the three fields
// space-joined ("sec min hour"); interval kind as
// "every:<amount><s|m|h>@<RFC3339 anchor>". ParseExpression is the inverse,
// losslessly for every expression this package constructs.
func (e Expression) String() string {
	if e.Kind == KindInterval {
		return fmt.Sprintf("every:%d%s@%s", e.Amount, e.Unit.suffix(), e.Anchor.Format(time.RFC3339))
	}
	return e.Second.String() + " " + e.Minute.String() + " " + e.Hour.String()
}

// ParseExpression parses the serialized form produced by String.
func ParseExpression(text string) (Expression, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Expression{}, fmt.Errorf("empty schedule expression")
	}

	if rest, ok := strings.CutPrefix(s, "every:"); ok {
		return parseIntervalExpr(rest)
	}

	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Expression{}, fmt.Errorf("cron expression %q: want 3 fields (second minute hour), got %d", text, len(fields))
	}
	return NewCron(fields[0], fields[1], fields[2])
}

func parseIntervalExpr(s string) (Expression, error) {
	body, anchorText, ok := strings.Cut(s, "@")
	if !ok {
		return Expression{}, fmt.Errorf("interval expression %q: missing @anchor", s)
	}
	anchor, err := time.Parse(time.RFC3339, strings.TrimSpace(anchorText))
	if err != nil {
		return Expression{}, fmt.Errorf("interval anchor: %w", err)
	}

	body = strings.TrimSpace(body)
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	if i == 0 {
		return Expression{}, fmt.Errorf("interval expression %q: missing amount", s)
	}
	amount, err := strconv.Atoi(body[:i])
	if err != nil {
		return Expression{}, fmt.Errorf("interval amount: %w", err)
	}
	unit, err := ParseUnit(body[i:])
	if err != nil {
		return Expression{}, err
	}
	return NewInterval(amount, unit, anchor)
}

// Equal reports whether two expressions describe the same schedule.
func (e Expression) Equal(o Expression) bool {
	if e.Kind != o.Kind {
		return false
	}
	if e.Kind == KindInterval {
		return e.Amount == o.Amount && e.Unit == o.Unit && e.Anchor.Equal(o.Anchor)
	}
	return e.Second.Equal(o.Second) && e.Minute.Equal(o.Minute) && e.Hour.Equal(o.Hour)
}
