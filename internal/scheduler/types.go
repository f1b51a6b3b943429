package scheduler

import (
	"sync"
	"time"

	"lapsed/internal/schedule"
	"lapsed/internal/task"
	logx "lapsed/pkg/logx"
)

// JobFactory builds a fresh job body for one fire of a subject. The factory
// runs on the tick goroutine and must not block; the returned body runs on
// the manager's worker pool.
type JobFactory func(now time.Time) task.JobFunc

// Subject is one schedulable unit: a camera capture or an export, with the
// expressions that decide when it fires.
type Subject struct {
	ID          string
	Name        string
	Kind        task.Kind
	Enabled     bool
	Expressions []schedule.Expression
	Make        JobFactory
}

// submitter is the slice of the task manager the scheduler needs.
type submitter interface {
	Submit(task.Submission) (string, error)
}

// Config controls the tick actor.
type Config struct {
	Tick time.Duration // evaluation cadence, default 1s
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	return c
}

// Service is the ticking actor. It owns no execution: matches are handed to
// the task manager and the tick moves on, so a slow job never delays the
// next tick's evaluation of other subjects.
type Service struct {
	cfg Config
	log logx.Logger
	mgr submitter

	mu       sync.Mutex
	subjects []Subject
	running  bool
	stopCh   chan struct{}

	ticks    uint64
	fired    uint64
	skipped  uint64
	lastTick time.Time

	wg sync.WaitGroup
}

// SubjectInfo is one subject's diagnostic view.
type SubjectInfo struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        task.Kind   `json:"kind"`
	Enabled     bool        `json:"enabled"`
	Expressions []string    `json:"expressions"`
	NextRuns    []time.Time `json:"next_runs"`
}

// Snapshot is the scheduler's diagnostic view.
type Snapshot struct {
	Running  bool          `json:"running"`
	Tick     time.Duration `json:"tick"`
	Ticks    uint64        `json:"ticks"`
	Fired    uint64        `json:"fired"`
	Skipped  uint64        `json:"skipped"`
	LastTick time.Time     `json:"last_tick"`
	Subjects []SubjectInfo `json:"subjects"`
}
