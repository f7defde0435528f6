package store

import (
	"encoding/json"
	"time"

	"github.com/anvilops/flowline/pkg/schema"
)

// Workflow is a registered workflow template. Immutable by convention:
// executions reference it but never modify it.
type Workflow struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Version     string                    `json:"version"`
	Description string                    `json:"description,omitempty"`
	Active      bool                      `json:"active"`
	Tags        []string                  `json:"tags,omitempty"`
	Definition  schema.WorkflowDefinition `json:"definition"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Execution is one invocation of a workflow.
// Result is set if and only if the execution completed.
type Execution struct {
	ID            string                 `json:"id"`
	WorkflowID    string                 `json:"workflow_id"`
	WorkflowName  string                 `json:"workflow_name"`
	Status        schema.ExecutionStatus `json:"status"`
	Context       map[string]any         `json:"context,omitempty"` // input variables as supplied by the trigger
	Result        map[string]any         `json:"result,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	TriggerType   schema.TriggerType     `json:"trigger_type"`
	TriggerSource string                 `json:"trigger_source,omitempty"`
	TenantID      string                 `json:"tenant_id,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// ExecutionStep is the execution-time record of a single step attempt series.
type ExecutionStep struct {
	ID              string            `json:"id"`
	ExecutionID     string            `json:"execution_id"`
	Name            string            `json:"name"`
	Type            schema.StepType   `json:"type"`
	SequenceNumber  int               `json:"sequence_number"`
	Status          schema.StepStatus `json:"status"`
	InputData       map[string]any    `json:"input_data,omitempty"`
	OutputData      any               `json:"output_data,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ErrorDetails    map[string]any    `json:"error_details,omitempty"`
	RetryCount      int               `json:"retry_count"`
	MaxRetries      int               `json:"max_retries"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	DurationSeconds int64             `json:"duration_seconds,omitempty"`
}

// Event is an immutable entry in the execution event log.
type Event struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	StepName    string          `json:"step_name,omitempty"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ScheduledTrigger starts a workflow on a cron schedule.
type ScheduledTrigger struct {
	ID             string         `json:"id"`
	WorkflowName   string         `json:"workflow_name"`
	CronExpression string         `json:"cron_expression"`
	Params         map[string]any `json:"params,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflow templates.
type WorkflowFilter struct {
	Active *bool  `json:"active,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// WorkflowUpdate specifies the operator-mutable fields of a template.
type WorkflowUpdate struct {
	Description *string                    `json:"description,omitempty"`
	Definition  *schema.WorkflowDefinition `json:"definition,omitempty"`
	Active      *bool                      `json:"active,omitempty"`
	Tags        *[]string                  `json:"tags,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowID string                  `json:"workflow_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	TenantID   string                  `json:"tenant_id,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status       *schema.ExecutionStatus `json:"status,omitempty"`
	Result       map[string]any          `json:"result,omitempty"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
}

// ScheduledTriggerUpdate specifies mutable fields of a scheduled trigger.
type ScheduledTriggerUpdate struct {
	Enabled   *bool      `json:"enabled,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
