package task

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lapsed/internal/eventbus"
	logx "lapsed/pkg/logx"
)

// Config controls the task manager.
type Config struct {
	Workers   int
	QueueSize int

	// Retention is how long terminal tasks stay visible before gc evicts
	// them (a final status read window).
	Retention time.Duration

	// ProgressEventsPerSec throttles task.progress events per task on the
	// event bus. 0 disables throttling.
	ProgressEventsPerSec int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Retention <= 0 {
		c.Retention = 10 * time.Minute
	}
	if c.ProgressEventsPerSec <= 0 {
		c.ProgressEventsPerSec = 5
	}
	return c
}

// Manager is the process-wide task registry plus its bounded worker pool.
// It is shared by scheduler ticks and manual "run now" submissions, and is
// safe for concurrent use.
type Manager struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	recs    map[string]*record
	q       chan *record
	stopCh  chan struct{}
	cancel  context.CancelFunc
	running bool

	wg sync.WaitGroup
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cfg:  cfg.withDefaults(),
		log:  log,
		bus:  bus,
		recs: make(map[string]*record),
	}
}

// Start launches the worker pool and the gc sweeper. It is idempotent.
func (m *Manager) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.q = make(chan *record, m.cfg.QueueSize)
	m.stopCh = make(chan struct{})
	m.cancel = cancel
	m.running = true
	queue := m.q
	stopCh := m.stopCh
	workers := m.cfg.Workers
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.worker(runCtx, stopCh, queue)
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.gcLoop(stopCh)
	}()

	m.log.Info("task manager started",
		logx.Int("workers", workers),
		logx.Int("queue", cap(queue)),
		logx.Duration("retention", m.cfg.Retention))
}

// Stop cancels the run context, stops accepting submissions and waits for
// workers to drain, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.log.Info("task manager stopped")
	case <-ctx.Done():
		m.log.Warn("task manager stop timed out", logx.Err(ctx.Err()))
	}
}

// Submit registers a pending task and schedules its job body on the worker
// pool. It never blocks: a saturated queue is ErrQueueFull. When the
// submission names a subject, at most one pending/running task per
// subject+kind is admitted (ErrDuplicate otherwise) — manual triggers go
// through the same gate as scheduler ticks.
func (m *Manager) Submit(sub Submission) (string, error) {
	if sub.Run == nil {
		return "", fmt.Errorf("job body is required")
	}
	if strings.TrimSpace(string(sub.Kind)) == "" {
		return "", fmt.Errorf("task kind is required")
	}
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		name = string(sub.Kind)
	}

	now := time.Now()
	rec := &record{
		id:      uuid.NewString(),
		kind:    sub.Kind,
		subject: sub.Subject,
		name:    name,
		run:     sub.Run,
		status:  StatusPending,
		created: now,
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return "", ErrStopped
	}
	if sub.Subject != "" && m.activeForLocked(sub.Subject, sub.Kind) != nil {
		m.mu.Unlock()
		return "", ErrDuplicate
	}
	m.recs[rec.id] = rec
	q := m.q
	m.mu.Unlock()

	select {
	case q <- rec:
		return rec.id, nil
	default:
		m.mu.Lock()
		delete(m.recs, rec.id)
		m.mu.Unlock()
		m.log.Warn("task rejected: queue full",
			logx.String("task", name), logx.String("kind", string(sub.Kind)))
		return "", ErrQueueFull
	}
}

// Cancel requests cooperative cancellation. It reports whether the task
// exists and was not already terminal. A pending task will transition
// straight to cancelled without its body ever running; a running task
// transitions only once the body observes the flag and exits.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	rec := m.recs[id]
	m.mu.Unlock()
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	if rec.status.Terminal() {
		rec.mu.Unlock()
		return false
	}
	rec.cancelRequested = true
	rec.mu.Unlock()

	m.log.Debug("cancellation requested", logx.String("id", id))
	return true
}

// Get returns a point-in-time snapshot of one task.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	rec := m.recs[id]
	m.mu.Unlock()
	if rec == nil {
		return Snapshot{}, false
	}
	return rec.snapshot(time.Now()), true
}

// ListActive returns snapshots of all pending and running tasks, oldest
// first. Safe to call concurrently with running jobs.
func (m *Manager) ListActive() []Snapshot {
	return m.list(func(s Snapshot) bool { return !s.Status.Terminal() })
}

// ListAll returns snapshots of every tracked task, including terminal tasks
// still inside the retention window.
func (m *Manager) ListAll() []Snapshot {
	return m.list(func(Snapshot) bool { return true })
}

func (m *Manager) list(keep func(Snapshot) bool) []Snapshot {
	now := time.Now()
	m.mu.Lock()
	recs := make([]*record, 0, len(m.recs))
	for _, r := range m.recs {
		recs = append(recs, r)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(recs))
	for _, r := range recs {
		if s := r.snapshot(now); keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ActiveFor returns the active (pending/running) task for a subject+kind.
func (m *Manager) ActiveFor(subject string, kind Kind) (Snapshot, bool) {
	m.mu.Lock()
	rec := m.activeForLocked(subject, kind)
	m.mu.Unlock()
	if rec == nil {
		return Snapshot{}, false
	}
	return rec.snapshot(time.Now()), true
}

func (m *Manager) activeForLocked(subject string, kind Kind) *record {
	for _, r := range m.recs {
		if r.subject != subject || r.kind != kind {
			continue
		}
		r.mu.Lock()
		terminal := r.status.Terminal()
		r.mu.Unlock()
		if !terminal {
			return r
		}
	}
	return nil
}

// ---- gc ----

func (m *Manager) gcLoop(stopCh <-chan struct{}) {
	interval := m.cfg.Retention / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-t.C:
			m.sweep(now)
		}
	}
}

// sweep evicts terminal tasks whose retention window has elapsed. This is
// the only automatic removal.
func (m *Manager) sweep(now time.Time) {
	cutoff := now.Add(-m.cfg.Retention)

	m.mu.Lock()
	var evict []string
	for id, r := range m.recs {
		r.mu.Lock()
		gone := r.status.Terminal() && !r.finished.IsZero() && r.finished.Before(cutoff)
		r.mu.Unlock()
		if gone {
			evict = append(evict, id)
		}
	}
	for _, id := range evict {
		delete(m.recs, id)
	}
	m.mu.Unlock()

	if len(evict) > 0 {
		m.log.Debug("evicted terminal tasks", logx.Int("count", len(evict)))
	}
}
