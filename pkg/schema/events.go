package schema

// Event types published on the platform event bus.
const (
	EventExecutionCompleted = "workflow.execution.completed"
	EventExecutionFailed    = "workflow.execution.failed"
	EventExecutionCancelled = "workflow.execution.cancelled"
)

// Event types recorded only in the internal event log.
const (
	EventExecutionStarted = "workflow.execution.started"
	EventStepStarted      = "workflow.step.started"
	EventStepCompleted    = "workflow.step.completed"
	EventStepFailed       = "workflow.step.failed"
	EventStepRetried      = "workflow.step.retried"
)

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus represents the lifecycle state of an execution step.
// Skipped is part of the model but the engine does not currently produce it:
// steps cut off by an early-exit condition are never materialized.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)
