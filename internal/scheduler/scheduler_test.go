package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/internal/store"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (r *recordingRunner) RunScheduled(_ context.Context, workflowName string, _ map[string]any, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, workflowName)
	return r.err
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_CalculateNextRun(t *testing.T) {
	s := NewScheduler(store.NewMemoryStore(), &recordingRunner{}, discardLogger())

	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("whenever", from)
	assert.Error(t, err)
}

func TestScheduler_TickRunsDueTriggers(t *testing.T) {
	st := store.NewMemoryStore()
	runner := &recordingRunner{}
	s := NewScheduler(st, runner, discardLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, st.CreateScheduledTrigger(ctx, &store.ScheduledTrigger{
		ID: "due", WorkflowName: "nightly", CronExpression: "0 0 * * *",
		Enabled: true, NextRunAt: &past,
	}))
	require.NoError(t, st.CreateScheduledTrigger(ctx, &store.ScheduledTrigger{
		ID: "later", WorkflowName: "weekly", CronExpression: "0 0 * * 0",
		Enabled: true, NextRunAt: &future,
	}))
	require.NoError(t, st.CreateScheduledTrigger(ctx, &store.ScheduledTrigger{
		ID: "off", WorkflowName: "disabled", CronExpression: "0 0 * * *",
		Enabled: false, NextRunAt: &past,
	}))

	s.tick(ctx)

	assert.Equal(t, []string{"nightly"}, runner.runs)

	// The due trigger advanced.
	trigs, err := st.ListScheduledTriggers(ctx, false)
	require.NoError(t, err)
	for _, trig := range trigs {
		if trig.ID == "due" {
			require.NotNil(t, trig.LastRunAt)
			require.NotNil(t, trig.NextRunAt)
			assert.True(t, trig.NextRunAt.After(time.Now().UTC()))
		}
	}
}

func TestScheduler_NilNextRunAtRunsImmediately(t *testing.T) {
	st := store.NewMemoryStore()
	runner := &recordingRunner{}
	s := NewScheduler(st, runner, discardLogger())
	ctx := context.Background()

	require.NoError(t, st.CreateScheduledTrigger(ctx, &store.ScheduledTrigger{
		ID: "fresh", WorkflowName: "wf", CronExpression: "*/5 * * * *", Enabled: true,
	}))

	s.tick(ctx)
	assert.Equal(t, 1, runner.count())
}

func TestScheduler_InflightDedup(t *testing.T) {
	s := NewScheduler(store.NewMemoryStore(), &recordingRunner{}, discardLogger())

	assert.True(t, s.tryAcquire("t1"))
	assert.False(t, s.tryAcquire("t1"))
	s.release("t1")
	assert.True(t, s.tryAcquire("t1"))
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(store.NewMemoryStore(), &recordingRunner{}, discardLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background())) // double start

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop()) // idempotent

	// Restart after stop.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
