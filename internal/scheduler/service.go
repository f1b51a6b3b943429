package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lapsed/internal/task"
	logx "lapsed/pkg/logx"
)

func New(cfg Config, mgr submitter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg.withDefaults(),
		log: log,
		mgr: mgr,
	}
}

// Start launches the tick loop. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	_ = ctx // triggering is stop-channel driven; ctx reserved for drain policies

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	n := len(s.subjects)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(stopCh)
	}()
	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.Tick), logx.Int("subjects", n))
}

// Stop halts the tick loop. In-flight tasks keep running on the manager.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) loop(stopCh <-chan struct{}) {
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-t.C:
			s.tick(now)
		}
	}
}

// tick evaluates every enabled subject's enabled expressions against now and
// submits one job per matching subject. A subject's problem (bad factory,
// duplicate skip, full queue) never affects the other subjects in the same
// tick.
func (s *Service) tick(now time.Time) {
	s.mu.Lock()
	subjects := make([]Subject, len(s.subjects))
	copy(subjects, s.subjects)
	s.ticks++
	s.lastTick = now
	s.mu.Unlock()

	for i := range subjects {
		sub := &subjects[i]
		if !sub.Enabled {
			continue
		}
		matched := false
		for _, expr := range sub.Expressions {
			if expr.Enabled && expr.Matches(now, s.cfg.Tick) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		s.fire(sub, now)
	}
}

func (s *Service) fire(sub *Subject, now time.Time) {
	if sub.Make == nil {
		s.log.Error("subject has no job factory", logx.String("subject", sub.ID))
		return
	}
	id, err := s.mgr.Submit(task.Submission{
		Kind:    sub.Kind,
		Subject: sub.ID,
		Name:    sub.Name,
		Run:     sub.Make(now),
	})
	switch {
	case err == nil:
		s.countFired()
		s.log.Debug("job submitted",
			logx.String("subject", sub.ID),
			logx.String("kind", string(sub.Kind)),
			logx.String("id", id))
	case errors.Is(err, task.ErrDuplicate):
		// Previous run still active; skip this match. Not a task failure.
		s.countSkipped()
		s.log.Info("match skipped: previous run still active",
			logx.String("subject", sub.ID), logx.String("kind", string(sub.Kind)))
	case errors.Is(err, task.ErrQueueFull):
		s.countSkipped()
		s.log.Warn("match dropped: task queue full", logx.String("subject", sub.ID))
	default:
		s.log.Error("submit failed", logx.String("subject", sub.ID), logx.Err(err))
	}
}

func (s *Service) countFired() {
	s.mu.Lock()
	s.fired++
	s.mu.Unlock()
}

func (s *Service) countSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

// Reload swaps the full subject set. The swap is all-or-nothing: on any
// validation error the current set stays in place, and a tick observes either
// the old set or the new one, never a mix.
func (s *Service) Reload(subjects []Subject) error {
	seen := make(map[string]bool, len(subjects))
	for i := range subjects {
		sub := &subjects[i]
		if strings.TrimSpace(sub.ID) == "" {
			return fmt.Errorf("subject %d: id is required", i)
		}
		if seen[sub.ID] {
			return fmt.Errorf("subject %q: duplicate id", sub.ID)
		}
		seen[sub.ID] = true
		if sub.Make == nil {
			return fmt.Errorf("subject %q: job factory is required", sub.ID)
		}
	}

	next := make([]Subject, len(subjects))
	copy(next, subjects)

	s.mu.Lock()
	s.subjects = next
	s.mu.Unlock()

	s.log.Info("subjects reloaded", logx.Int("count", len(next)))
	return nil
}

// RunNow submits a manual job for the subject, bypassing the tick but going
// through the same dedup machinery. The subject's enabled flag is not
// consulted: a manual trigger is an explicit override.
func (s *Service) RunNow(subjectID string) (string, error) {
	s.mu.Lock()
	var sub *Subject
	for i := range s.subjects {
		if s.subjects[i].ID == subjectID {
			sub = &s.subjects[i]
			break
		}
	}
	s.mu.Unlock()

	if sub == nil {
		return "", fmt.Errorf("unknown subject %q", subjectID)
	}
	if sub.Make == nil {
		return "", fmt.Errorf("subject %q has no job factory", subjectID)
	}
	id, err := s.mgr.Submit(task.Submission{
		Kind:    sub.Kind,
		Subject: sub.ID,
		Name:    sub.Name,
		Run:     sub.Make(time.Now()),
	})
	if err != nil {
		return "", err
	}
	s.log.Info("manual run submitted",
		logx.String("subject", sub.ID), logx.String("id", id))
	return id, nil
}
