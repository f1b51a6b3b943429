package task

import (
	"context"
	"sync"
	"time"
)

// Kind labels the job type of a task.
type Kind string

const (
	KindCapture Kind = "capture"
	KindExport  Kind = "export"
	KindRender  Kind = "render"
)

// Status is the lifecycle state of a task. pending -> running -> one of the
// terminal states; pending -> cancelled is also valid (the job body never
// runs). No transition leaves a terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is the capability handed to a job body: a progress reporter plus
// a cancellation check. It is safe to pass down a call chain.
type Progress interface {
	// Report updates the task's counters and status line.
	Report(current, total int64, message string)
	// Cancelled reports whether cancellation has been requested. It is a
	// cheap flag read; job bodies are expected to call it at every
	// item/chunk boundary.
	Cancelled() bool
}

// JobFunc is a job body. It must check p.Cancelled() at natural iteration
// boundaries and exit promptly when true, leaving partial output in place.
type JobFunc func(ctx context.Context, p Progress) error

// Submission describes one job handed to the manager.
type Submission struct {
	Kind    Kind
	Subject string // owning subject id; enables per-subject+kind dedup
	Name    string // human-readable label
	Run     JobFunc
}

// Snapshot is the read-only, point-in-time view of a task exposed to
// pollers and streamers. Rate and ETA are derived on copy, never stored.
type Snapshot struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Subject  string  `json:"subject"`
	Name     string  `json:"name"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"` // 0..100
	Current  int64   `json:"current"`
	Total    int64   `json:"total"`
	Message  string  `json:"message"`
	Rate     float64 `json:"rate"`    // items per second
	Elapsed  float64 `json:"elapsed"` // seconds since start
	ETA      float64 `json:"eta"`     // seconds remaining, 0 when unknown
	Error    string  `json:"error"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// record is the mutable task state. All fields are guarded by mu so readers
// never observe a torn update.
type record struct {
	mu sync.Mutex

	id      string
	kind    Kind
	subject string
	name    string
	run     JobFunc

	status   Status
	progress float64
	current  int64
	total    int64
	message  string
	errText  string

	cancelRequested bool

	created  time.Time
	started  time.Time
	finished time.Time
}

func (r *record) snapshotLocked(now time.Time) Snapshot {
	s := Snapshot{
		ID:         r.id,
		Kind:       r.kind,
		Subject:    r.subject,
		Name:       r.name,
		Status:     r.status,
		Progress:   r.progress,
		Current:    r.current,
		Total:      r.total,
		Message:    r.message,
		Error:      r.errText,
		StartedAt:  r.started,
		FinishedAt: r.finished,
	}
	if !r.started.IsZero() {
		end := now
		if !r.finished.IsZero() {
			end = r.finished
		}
		elapsed := end.Sub(r.started)
		if elapsed < 0 {
			elapsed = 0
		}
		s.Elapsed = elapsed.Seconds()
		s.Rate, s.ETA = derive(r.current, r.total, elapsed)
	}
	return s
}

func (r *record) snapshot(now time.Time) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(now)
}

// derive recomputes rate and ETA from the counters and the wall-clock
// elapsed. Both collapse to 0 when the inputs are unknown, so they never
// drift from the stored state.
func derive(current, total int64, elapsed time.Duration) (rate, eta float64) {
	if current <= 0 || elapsed <= 0 {
		return 0, 0
	}
	rate = float64(current) / elapsed.Seconds()
	if rate <= 0 || total <= 0 || current >= total {
		return rate, 0
	}
	eta = float64(total-current) / rate
	return rate, eta
}
