package scheduler

import "time"

// Snapshot returns the scheduler's diagnostic view, including a short next
// fire preview per subject.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	subjects := make([]Subject, len(s.subjects))
	copy(subjects, s.subjects)
	snap := Snapshot{
		Running:  s.running,
		Tick:     s.cfg.Tick,
		Ticks:    s.ticks,
		Fired:    s.fired,
		Skipped:  s.skipped,
		LastTick: s.lastTick,
	}
	s.mu.Unlock()

	now := time.Now()
	snap.Subjects = make([]SubjectInfo, 0, len(subjects))
	for i := range subjects {
		sub := &subjects[i]
		info := SubjectInfo{
			ID:      sub.ID,
			Name:    sub.Name,
			Kind:    sub.Kind,
			Enabled: sub.Enabled,
		}
		for _, expr := range sub.Expressions {
			info.Expressions = append(info.Expressions, expr.String())
			if !sub.Enabled || !expr.Enabled {
				continue
			}
			if runs, err := expr.NextRuns(now, 3); err == nil {
				info.NextRuns = append(info.NextRuns, runs...)
			}
		}
		snap.Subjects = append(snap.Subjects, info)
	}
	return snap
}
