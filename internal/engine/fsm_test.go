package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/pkg/schema"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to schema.ExecutionStatus
		want     bool
	}{
		{schema.ExecutionStatusPending, schema.ExecutionStatusRunning, true},
		{schema.ExecutionStatusPending, schema.ExecutionStatusCancelled, true},
		{schema.ExecutionStatusPending, schema.ExecutionStatusCompleted, false},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusCompleted, true},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusFailed, true},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusCancelled, true},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusPending, false},
		{schema.ExecutionStatusCompleted, schema.ExecutionStatusRunning, false},
		{schema.ExecutionStatusFailed, schema.ExecutionStatusCancelled, false},
		{schema.ExecutionStatusCancelled, schema.ExecutionStatusRunning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransitionStep(t *testing.T) {
	// running -> running covers retry attempts.
	assert.True(t, CanTransitionStep(schema.StepStatusRunning, schema.StepStatusRunning))
	assert.True(t, CanTransitionStep(schema.StepStatusPending, schema.StepStatusRunning))
	assert.True(t, CanTransitionStep(schema.StepStatusPending, schema.StepStatusSkipped))
	assert.True(t, CanTransitionStep(schema.StepStatusRunning, schema.StepStatusFailed))
	assert.False(t, CanTransitionStep(schema.StepStatusCompleted, schema.StepStatusRunning))
	assert.False(t, CanTransitionStep(schema.StepStatusSkipped, schema.StepStatusRunning))
}

func TestExecutionFSM_TransitionRecordsEvent(t *testing.T) {
	st := store.NewMemoryStore()
	fsm := &executionFSM{store: st}
	ctx := context.Background()

	exec := &store.Execution{ID: "e1", WorkflowID: "w1", Status: schema.ExecutionStatusPending}
	require.NoError(t, st.CreateExecution(ctx, exec))

	require.NoError(t, fsm.Transition(ctx, "e1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning))

	evts, err := st.ListEvents(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, schema.EventExecutionStarted, evts[0].Type)
}

func TestExecutionFSM_InvalidTransition(t *testing.T) {
	fsm := &executionFSM{store: store.NewMemoryStore()}

	err := fsm.Transition(context.Background(), "e1",
		schema.ExecutionStatusCompleted, schema.ExecutionStatusRunning)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
}
