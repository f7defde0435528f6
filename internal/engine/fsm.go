package engine

import (
	"context"

	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/pkg/schema"
)

// ValidExecutionTransitions defines the allowed lifecycle transitions for
// executions. The three right-hand terminal states have no outgoing edges.
var ValidExecutionTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionStatusPending:   {schema.ExecutionStatusRunning, schema.ExecutionStatusCancelled},
	schema.ExecutionStatusRunning:   {schema.ExecutionStatusCompleted, schema.ExecutionStatusFailed, schema.ExecutionStatusCancelled},
	schema.ExecutionStatusCompleted: {},
	schema.ExecutionStatusFailed:    {},
	schema.ExecutionStatusCancelled: {},
}

// ValidStepTransitions defines the allowed lifecycle transitions for steps.
// The running -> running self-loop covers retry attempts.
var ValidStepTransitions = map[schema.StepStatus][]schema.StepStatus{
	schema.StepStatusPending:   {schema.StepStatusRunning, schema.StepStatusSkipped},
	schema.StepStatusRunning:   {schema.StepStatusRunning, schema.StepStatusCompleted, schema.StepStatusFailed},
	schema.StepStatusCompleted: {},
	schema.StepStatusFailed:    {},
	schema.StepStatusSkipped:   {},
}

// CanTransition reports whether an execution may move from one status to another.
func CanTransition(from, to schema.ExecutionStatus) bool {
	for _, allowed := range ValidExecutionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionStep reports whether a step may move from one status to another.
func CanTransitionStep(from, to schema.StepStatus) bool {
	for _, allowed := range ValidStepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// executionFSM validates execution transitions and records them in the
// store's event log.
type executionFSM struct {
	store store.Store
}

// Transition validates the move and emits the corresponding log event.
// The caller persists the new status on the execution record.
func (f *executionFSM) Transition(ctx context.Context, executionID string, from, to schema.ExecutionStatus) error {
	if !CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid execution transition: %s -> %s", from, to).
			WithDetails(map[string]any{"execution_id": executionID, "from": string(from), "to": string(to)})
	}
	eventType := executionEventType(to)
	if eventType == "" {
		return nil
	}
	return f.store.AppendEvent(ctx, &store.Event{
		ExecutionID: executionID,
		Type:        eventType,
	})
}

func executionEventType(to schema.ExecutionStatus) string {
	switch to {
	case schema.ExecutionStatusRunning:
		return schema.EventExecutionStarted
	case schema.ExecutionStatusCompleted:
		return schema.EventExecutionCompleted
	case schema.ExecutionStatusFailed:
		return schema.EventExecutionFailed
	case schema.ExecutionStatusCancelled:
		return schema.EventExecutionCancelled
	default:
		return ""
	}
}
