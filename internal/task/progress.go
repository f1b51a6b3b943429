package task

import (
	"time"

	"golang.org/x/time/rate"

	"lapsed/internal/eventbus"
)

// reporter is the manager-backed Progress implementation handed to job
// bodies running on the worker pool.
type reporter struct {
	mgr *Manager
	rec *record
	lim *rate.Limiter
}

// Report updates the task's counters and status line. Progress is
// 100*current/total when total is known; otherwise the previous percentage is
// kept. The percentage never decreases while the task is running.
func (p *reporter) Report(current, total int64, message string) {
	r := p.rec
	r.mu.Lock()
	if r.status != StatusRunning {
		r.mu.Unlock()
		return
	}
	if current > r.current {
		r.current = current
	}
	if total > 0 {
		r.total = total
	}
	if message != "" {
		r.message = message
	}
	if r.total > 0 {
		pct := 100 * float64(r.current) / float64(r.total)
		if pct > 100 {
			pct = 100
		}
		if pct > r.progress {
			r.progress = pct
		}
	}
	snap := r.snapshotLocked(time.Now())
	r.mu.Unlock()

	// Throttle the event stream; the registry itself always holds the
	// latest values for pollers.
	if p.lim == nil || p.lim.Allow() {
		p.mgr.publish(eventProgress, snap)
	}
}

func (p *reporter) Cancelled() bool {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	return p.rec.cancelRequested
}

func newProgress(m *Manager, r *record, eventsPerSec int) *reporter {
	var lim *rate.Limiter
	if eventsPerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(eventsPerSec), eventsPerSec)
	}
	return &reporter{mgr: m, rec: r, lim: lim}
}

const (
	eventStarted   = "task.started"
	eventProgress  = "task.progress"
	eventCompleted = "task.completed"
	eventFailed    = "task.failed"
	eventCancelled = "task.cancelled"
)

func (m *Manager) publish(typ string, snap Snapshot) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: snap})
}
