package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lapsed/internal/eventbus"
	logx "lapsed/pkg/logx"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := New(cfg, logx.Nop(), eventbus.New())
	m.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(ctx)
	})
	return m
}

func waitStatus(t *testing.T, m *Manager, id string, want Status) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := m.Get(id)
		if !ok {
			t.Fatalf("task %s vanished", id)
		}
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := m.Get(id)
	t.Fatalf("task %s: status = %s, want %s", id, snap.Status, want)
	return Snapshot{}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1})

	id, err := m.Submit(Submission{
		Kind:    KindExport,
		Subject: "cam-1",
		Name:    "export cam-1",
		Run: func(ctx context.Context, p Progress) error {
			for i := int64(1); i <= 4; i++ {
				p.Report(i, 4, "copying")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	snap := waitStatus(t, m, id, StatusCompleted)
	if snap.Progress != 100 {
		t.Fatalf("Progress = %v, want 100", snap.Progress)
	}
	if snap.Current != 4 || snap.Total != 4 {
		t.Fatalf("counters = %d/%d, want 4/4", snap.Current, snap.Total)
	}
	if snap.FinishedAt.IsZero() || snap.StartedAt.IsZero() {
		t.Fatal("expected start and finish timestamps to be set")
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1})

	id, err := m.Submit(Submission{
		Kind: KindRender,
		Run: func(ctx context.Context, p Progress) error {
			p.Report(8, 10, "ahead")
			p.Report(3, 10, "stale update arrives late")
			return errors.New("stop here so the final snapshot keeps the counters")
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	snap := waitStatus(t, m, id, StatusFailed)
	if snap.Current != 8 {
		t.Fatalf("Current = %d, want 8 (must not decrease)", snap.Current)
	}
	if snap.Progress != 80 {
		t.Fatalf("Progress = %v, want 80 (must not decrease)", snap.Progress)
	}
}

func TestCancelPendingNeverRunsBody(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1, QueueSize: 8})

	release := make(chan struct{})
	blockID, err := m.Submit(Submission{
		Kind:    KindCapture,
		Subject: "cam-block",
		Run: func(ctx context.Context, p Progress) error {
			<-release
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Submit blocker error: %v", err)
	}
	waitStatus(t, m, blockID, StatusRunning)

	var ran atomic.Bool
	pendID, err := m.Submit(Submission{
		Kind:    KindCapture,
		Subject: "cam-pending",
		Run: func(ctx context.Context, p Progress) error {
			ran.Store(true)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Submit pending error: %v", err)
	}

	if !m.Cancel(pendID) {
		t.Fatal("Cancel returned false for a pending task")
	}
	close(release)

	snap := waitStatus(t, m, pendID, StatusCancelled)
	if ran.Load() {
		t.Fatal("job body ran after pending cancellation")
	}
	if !snap.StartedAt.IsZero() {
		t.Fatal("pending-cancelled task must not record a start time")
	}
	waitStatus(t, m, blockID, StatusCompleted)
}

func TestCancelRunningIsCooperative(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1})

	started := make(chan struct{})
	id, err := m.Submit(Submission{
		Kind:    KindExport,
		Subject: "cam-2",
		Run: func(ctx context.Context, p Progress) error {
			close(started)
			for i := int64(1); i <= 1000; i++ {
				if p.Cancelled() {
					p.Report(i-1, 1000, "stopping")
					return ErrCancelled
				}
				time.Sleep(time.Millisecond)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	<-started
	if !m.Cancel(id) {
		t.Fatal("Cancel returned false for a running task")
	}
	snap := waitStatus(t, m, id, StatusCancelled)
	if snap.Error != "" {
		t.Fatalf("cancelled task carries error %q", snap.Error)
	}
	if m.Cancel(id) {
		t.Fatal("Cancel must report false once the task is terminal")
	}
}

func TestDuplicateSubjectKindRejected(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 2, QueueSize: 8})

	release := make(chan struct{})
	body := func(ctx context.Context, p Progress) error {
		<-release
		return nil
	}

	id, err := m.Submit(Submission{Kind: KindCapture, Subject: "cam-dup", Run: body})
	if err != nil {
		t.Fatalf("first Submit error: %v", err)
	}
	waitStatus(t, m, id, StatusRunning)

	if _, err := m.Submit(Submission{Kind: KindCapture, Subject: "cam-dup", Run: body}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same subject+kind: err = %v, want ErrDuplicate", err)
	}
	// A different kind on the same subject is fine.
	other, err := m.Submit(Submission{Kind: KindExport, Subject: "cam-dup", Run: body})
	if err != nil {
		t.Fatalf("different kind Submit error: %v", err)
	}

	close(release)
	waitStatus(t, m, id, StatusCompleted)
	waitStatus(t, m, other, StatusCompleted)

	// Once terminal, the subject+kind slot opens again.
	done, err := m.Submit(Submission{
		Kind:    KindCapture,
		Subject: "cam-dup",
		Run:     func(ctx context.Context, p Progress) error { return nil },
	})
	if err != nil {
		t.Fatalf("resubmit after terminal error: %v", err)
	}
	waitStatus(t, m, done, StatusCompleted)
}

func TestFailureCapturesError(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1})

	id, err := m.Submit(Submission{
		Kind: KindRender,
		Run: func(ctx context.Context, p Progress) error {
			return errors.New("encoder exited with status 1")
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	snap := waitStatus(t, m, id, StatusFailed)
	if snap.Error != "encoder exited with status 1" {
		t.Fatalf("Error = %q", snap.Error)
	}
}

func TestPanicBecomesFailed(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1})

	id, err := m.Submit(Submission{
		Kind: KindCapture,
		Run: func(ctx context.Context, p Progress) error {
			panic("nil frame")
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	snap := waitStatus(t, m, id, StatusFailed)
	if snap.Error == "" {
		t.Fatal("panicking task must record an error")
	}

	// The pool survives the panic.
	next, err := m.Submit(Submission{
		Kind: KindCapture,
		Run:  func(ctx context.Context, p Progress) error { return nil },
	})
	if err != nil {
		t.Fatalf("Submit after panic error: %v", err)
	}
	waitStatus(t, m, next, StatusCompleted)
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	body := func(ctx context.Context, p Progress) error {
		<-release
		return nil
	}
	defer close(release)

	id, err := m.Submit(Submission{Kind: KindExport, Run: body})
	if err != nil {
		t.Fatalf("Submit blocker error: %v", err)
	}
	waitStatus(t, m, id, StatusRunning)

	if _, err := m.Submit(Submission{Kind: KindExport, Run: body}); err != nil {
		t.Fatalf("Submit into free slot error: %v", err)
	}
	if _, err := m.Submit(Submission{Kind: KindExport, Run: body}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if len(m.ListActive()) != 2 {
		t.Fatalf("rejected submission leaked into the registry: %d active", len(m.ListActive()))
	}
}

func TestSweepEvictsOldTerminal(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Config{Workers: 1, Retention: time.Minute})

	id, err := m.Submit(Submission{
		Kind: KindCapture,
		Run:  func(ctx context.Context, p Progress) error { return nil },
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitStatus(t, m, id, StatusCompleted)

	m.sweep(time.Now())
	if _, ok := m.Get(id); !ok {
		t.Fatal("terminal task evicted inside the retention window")
	}

	m.sweep(time.Now().Add(2 * time.Minute))
	if _, ok := m.Get(id); ok {
		t.Fatal("terminal task survived past retention")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	t.Parallel()
	m := New(Config{}, logx.Nop(), eventbus.New())
	m.Start(context.Background())
	m.Stop(context.Background())

	_, err := m.Submit(Submission{
		Kind: KindCapture,
		Run:  func(ctx context.Context, p Progress) error { return nil },
	})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestDerive(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		current int64
		total   int64
		elapsed time.Duration
		rate    float64
		eta     float64
	}{
		{name: "steady", current: 50, total: 100, elapsed: 10 * time.Second, rate: 5, eta: 10},
		{name: "done", current: 100, total: 100, elapsed: 20 * time.Second, rate: 5, eta: 0},
		{name: "unknown total", current: 30, total: 0, elapsed: 10 * time.Second, rate: 3, eta: 0},
		{name: "nothing yet", current: 0, total: 100, elapsed: 10 * time.Second, rate: 0, eta: 0},
		{name: "no elapsed", current: 5, total: 10, elapsed: 0, rate: 0, eta: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rate, eta := derive(tt.current, tt.total, tt.elapsed)
			if rate != tt.rate || eta != tt.eta {
				t.Fatalf("derive(%d, %d, %v) = (%v, %v), want (%v, %v)",
					tt.current, tt.total, tt.elapsed, rate, eta, tt.rate, tt.eta)
			}
		})
	}
}

func TestTaskEventsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	m := New(Config{Workers: 1, ProgressEventsPerSec: 100}, logx.Nop(), bus)
	m.Start(context.Background())
	defer m.Stop(context.Background())

	id, err := m.Submit(Submission{
		Kind: KindExport,
		Run: func(ctx context.Context, p Progress) error {
			p.Report(1, 2, "half")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitStatus(t, m, id, StatusCompleted)

	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for !seen[eventCompleted] {
		select {
		case e := <-ch:
			seen[e.Type] = true
			if _, ok := e.Data.(Snapshot); !ok {
				t.Fatalf("event %s Data is %T, want Snapshot", e.Type, e.Data)
			}
		case <-deadline:
			t.Fatalf("missing task.completed event; saw %v", seen)
		}
	}
	for _, want := range []string{eventStarted, eventProgress, eventCompleted} {
		if !seen[want] {
			t.Fatalf("missing %s event; saw %v", want, seen)
		}
	}
}
