package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// previewParser accepts the 6-field form (with seconds) that cronSpec emits.
var previewParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// cronSpec renders a cron-kind expression as a standard 6-field cron spec.
// Day/month/weekday are unconstrained here; schedules in this system repeat
// daily.
func (e Expression) cronSpec() string {
	return fmt.Sprintf("%s %s %s * * *", e.Second.String(), e.Minute.String(), e.Hour.String())
}

// NextRuns returns the first n fire instants strictly after from.
//
// Cron-kind expressions go through the robfig parser on the serialized spec,
// so the preview agrees with what a standard cron engine would fire. Interval
// kind enumerates anchored samples anchor + k*period. This is preview only;
// the live match test is Expression.Matches.
func (e Expression) NextRuns(from time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}

	switch e.Kind {
	case KindCron:
		sched, err := previewParser.Parse(e.cronSpec())
		if err != nil {
			return nil, fmt.Errorf("preview parse %q: %w", e.cronSpec(), err)
		}
		out := make([]time.Time, 0, n)
		t := from
		for i := 0; i < n; i++ {
			t = sched.Next(t)
			if t.IsZero() {
				break
			}
			out = append(out, t)
		}
		return out, nil

	case KindInterval:
		period := e.Period()
		if period <= 0 {
			return nil, fmt.Errorf("interval period is zero")
		}
		out := make([]time.Time, 0, n)
		t := e.Anchor
		if from.After(e.Anchor) {
			k := from.Sub(e.Anchor) / period
			t = e.Anchor.Add(k * period)
		}
		for len(out) < n {
			if t.After(from) {
				out = append(out, t)
			}
			t = t.Add(period)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown expression kind %d", e.Kind)
}
