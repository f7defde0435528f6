package store

import (
	"context"

	"github.com/anvilops/flowline/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow templates
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	GetWorkflowByName(ctx context.Context, name string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error // cascades to executions

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)
	CountExecutionsByStatus(ctx context.Context, workflowID string) (map[schema.ExecutionStatus]int64, error)

	// Execution steps
	CreateStep(ctx context.Context, step *ExecutionStep) error
	UpdateStep(ctx context.Context, step *ExecutionStep) error
	ListSteps(ctx context.Context, executionID string) ([]*ExecutionStep, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, executionID string) ([]*Event, error)

	// Scheduled triggers
	CreateScheduledTrigger(ctx context.Context, trig *ScheduledTrigger) error
	UpdateScheduledTrigger(ctx context.Context, id string, update ScheduledTriggerUpdate) error
	ListScheduledTriggers(ctx context.Context, enabledOnly bool) ([]*ScheduledTrigger, error)
	DeleteScheduledTrigger(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
