package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anvilops/flowline/internal/store"
)

// WorkflowRunner is the interface the scheduler uses to start executions.
// Satisfied by the workflow service (avoids import cycle).
type WorkflowRunner interface {
	RunScheduled(ctx context.Context, workflowName string, input map[string]any, triggerSource, tenantID string) error
}

// Scheduler polls the store for due scheduled triggers and runs them.
type Scheduler struct {
	store  store.Store
	runner WorkflowRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // trigger IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled triggers and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	triggers, err := s.store.ListScheduledTriggers(ctx, true)
	if err != nil {
		s.logger.Error("failed to list scheduled triggers", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, trig := range triggers {
		if trig.NextRunAt == nil || !trig.NextRunAt.After(now) {
			if !s.tryAcquire(trig.ID) {
				continue // already running (dedup)
			}
			if err := s.runTrigger(ctx, trig, now); err != nil {
				s.logger.Error("failed to run scheduled trigger",
					slog.String("trigger_id", trig.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(trig.ID)
		}
	}
}

// runTrigger starts the workflow and updates the trigger's timestamps. The
// execution's own failure is recorded on the execution, not the trigger.
func (s *Scheduler) runTrigger(ctx context.Context, trig *store.ScheduledTrigger, now time.Time) error {
	s.logger.Info("running scheduled trigger",
		slog.String("trigger_id", trig.ID),
		slog.String("workflow", trig.WorkflowName),
	)

	if err := s.runner.RunScheduled(ctx, trig.WorkflowName, trig.Params, trig.ID, trig.TenantID); err != nil {
		s.logger.Error("scheduled execution failed",
			slog.String("trigger_id", trig.ID),
			slog.String("error", err.Error()),
		)
	}

	nextRun, err := s.CalculateNextRun(trig.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for trigger %q: %w", trig.ID, err)
	}
	return s.store.UpdateScheduledTrigger(ctx, trig.ID, store.ScheduledTriggerUpdate{
		LastRunAt: &now,
		NextRunAt: &nextRun,
	})
}

// tryAcquire returns true and marks the trigger as in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
