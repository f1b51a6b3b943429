package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "lapsed/pkg/logx"
)

func (m *Manager) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan *record) {
	for {
		select {
		case <-stopCh:
			return
		case rec := <-queue:
			m.execute(ctx, rec)
		}
	}
}

func (m *Manager) execute(ctx context.Context, rec *record) {
	now := time.Now()

	rec.mu.Lock()
	if rec.cancelRequested {
		// Cancelled while still queued: the body never runs.
		rec.status = StatusCancelled
		rec.finished = now
		snap := rec.snapshotLocked(now)
		rec.mu.Unlock()
		m.log.Info("task cancelled before start",
			logx.String("id", snap.ID), logx.String("task", snap.Name))
		m.publish(eventCancelled, snap)
		return
	}
	rec.status = StatusRunning
	rec.started = now
	startSnap := rec.snapshotLocked(now)
	rec.mu.Unlock()

	m.log.Info("task started",
		logx.String("id", startSnap.ID),
		logx.String("task", startSnap.Name),
		logx.String("kind", string(startSnap.Kind)),
		logx.String("subject", startSnap.Subject))
	m.publish(eventStarted, startSnap)

	err := m.runBody(ctx, rec)

	end := time.Now()
	rec.mu.Lock()
	rec.finished = end
	cancelled := rec.cancelRequested
	switch {
	case err != nil && errors.Is(err, ErrCancelled), err == nil && cancelled:
		rec.status = StatusCancelled
	case err != nil:
		rec.status = StatusFailed
		rec.errText = err.Error()
	default:
		rec.status = StatusCompleted
		rec.progress = 100
		if rec.total > 0 {
			rec.current = rec.total
		}
	}
	status := rec.status
	snap := rec.snapshotLocked(end)
	rec.mu.Unlock()

	switch status {
	case StatusCompleted:
		m.log.Info("task completed",
			logx.String("id", snap.ID),
			logx.String("task", snap.Name),
			logx.Duration("took", end.Sub(startSnap.StartedAt)))
		m.publish(eventCompleted, snap)
	case StatusCancelled:
		m.log.Info("task cancelled",
			logx.String("id", snap.ID),
			logx.String("task", snap.Name),
			logx.Int64("done", snap.Current))
		m.publish(eventCancelled, snap)
	default:
		m.log.Error("task failed",
			logx.String("id", snap.ID),
			logx.String("task", snap.Name),
			logx.String("error", snap.Error))
		m.publish(eventFailed, snap)
	}
}

// runBody invokes the job body with its Progress capability and converts a
// panic into an error so one bad job cannot take down the pool.
func (m *Manager) runBody(ctx context.Context, rec *record) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
			m.log.Error("task panicked",
				logx.String("id", rec.id),
				logx.Any("panic", v),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	return rec.run(ctx, newProgress(m, rec, m.cfg.ProgressEventsPerSec))
}
