package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anvilops/flowline/internal/engine"
	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/internal/validation"
	"github.com/anvilops/flowline/pkg/schema"
)

// WorkflowService is the application-facing surface for managing workflow
// templates and running executions. It validates definitions before they
// reach the store and delegates runs to the engine.
type WorkflowService struct {
	store     store.Store
	engine    *engine.Engine
	validator *validation.WorkflowValidator
	logger    *slog.Logger
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(s store.Store, eng *engine.Engine, validator *validation.WorkflowValidator, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{
		store:     s,
		engine:    eng,
		validator: validator,
		logger:    logger,
	}
}

// CreateWorkflowRequest carries the fields for registering a template.
type CreateWorkflowRequest struct {
	Name        string                    `json:"name"`
	Version     string                    `json:"version,omitempty"`
	Description string                    `json:"description,omitempty"`
	Tags        []string                  `json:"tags,omitempty"`
	Definition  schema.WorkflowDefinition `json:"definition"`
}

// CreateWorkflow validates and registers a new workflow template.
// Names are unique; registering an existing name is a conflict.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*store.Workflow, error) {
	if req.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow name is required")
	}
	if err := s.validator.ValidateDefinition(&req.Definition); err != nil {
		return nil, err
	}

	if existing, err := s.store.GetWorkflowByName(ctx, req.Name); err == nil && existing != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %q already exists", req.Name)
	}

	version := req.Version
	if version == "" {
		version = "1.0.0"
	}
	now := time.Now().UTC()
	wf := &store.Workflow{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Version:     version,
		Description: req.Description,
		Active:      true,
		Tags:        req.Tags,
		Definition:  req.Definition,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "workflow registered",
		slog.String("workflow", wf.Name),
		slog.Int("steps", len(wf.Definition.Steps)))
	return wf, nil
}

// UpdateWorkflow applies a partial update to a template. A new definition is
// validated before it replaces the stored one.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, id string, update store.WorkflowUpdate) (*store.Workflow, error) {
	if update.Definition != nil {
		if err := s.validator.ValidateDefinition(update.Definition); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateWorkflow(ctx, id, update); err != nil {
		return nil, err
	}
	return s.store.GetWorkflow(ctx, id)
}

// GetWorkflow fetches a template by ID.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// GetWorkflowByName fetches a template by its unique name.
func (s *WorkflowService) GetWorkflowByName(ctx context.Context, name string) (*store.Workflow, error) {
	return s.store.GetWorkflowByName(ctx, name)
}

// ListWorkflows lists templates matching the filter.
func (s *WorkflowService) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	return s.store.ListWorkflows(ctx, filter)
}

// DeleteWorkflow removes a template and all of its executions.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "workflow deleted", slog.String("workflow_id", id))
	return nil
}

// ExecuteRequest carries the parameters for starting an execution.
type ExecuteRequest struct {
	Workflow      string             `json:"workflow"` // ID or unique name
	Input         map[string]any     `json:"input,omitempty"`
	TriggerType   schema.TriggerType `json:"trigger_type,omitempty"`
	TriggerSource string             `json:"trigger_source,omitempty"`
	TenantID      string             `json:"tenant_id,omitempty"`
}

// ExecuteWorkflow resolves the workflow by ID or name and runs it
// synchronously. Inactive workflows cannot be executed.
func (s *WorkflowService) ExecuteWorkflow(ctx context.Context, req ExecuteRequest) (*store.Execution, error) {
	wf, err := s.resolveWorkflow(ctx, req.Workflow)
	if err != nil {
		return nil, err
	}
	if !wf.Active {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %q is inactive", wf.Name)
	}

	trigger := req.TriggerType
	if trigger == "" {
		trigger = schema.TriggerManual
	}
	return s.engine.Execute(ctx, wf, req.Input, trigger, req.TriggerSource, req.TenantID)
}

// resolveWorkflow tries the identifier as an ID first, then as a name.
func (s *WorkflowService) resolveWorkflow(ctx context.Context, nameOrID string) (*store.Workflow, error) {
	if nameOrID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow identifier is required")
	}
	wf, err := s.store.GetWorkflow(ctx, nameOrID)
	if err == nil {
		return wf, nil
	}
	if !schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, err
	}
	return s.store.GetWorkflowByName(ctx, nameOrID)
}

// GetExecution fetches an execution by ID.
func (s *WorkflowService) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	return s.store.GetExecution(ctx, id)
}

// ListExecutions lists executions matching the filter.
func (s *WorkflowService) ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]*store.Execution, error) {
	return s.store.ListExecutions(ctx, filter)
}

// ListExecutionSteps lists the step records of an execution in sequence order.
func (s *WorkflowService) ListExecutionSteps(ctx context.Context, executionID string) ([]*store.ExecutionStep, error) {
	if _, err := s.store.GetExecution(ctx, executionID); err != nil {
		return nil, err
	}
	return s.store.ListSteps(ctx, executionID)
}

// CancelExecution cancels a pending or running execution.
func (s *WorkflowService) CancelExecution(ctx context.Context, id string) (*store.Execution, error) {
	return s.engine.Cancel(ctx, id)
}

// CountExecutionsByStatus returns execution counts per status, optionally
// scoped to one workflow.
func (s *WorkflowService) CountExecutionsByStatus(ctx context.Context, workflowID string) (map[schema.ExecutionStatus]int64, error) {
	return s.store.CountExecutionsByStatus(ctx, workflowID)
}
