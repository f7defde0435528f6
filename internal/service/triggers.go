package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/pkg/schema"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RunScheduled starts an execution on behalf of the scheduler. A failed
// execution is also recorded on the execution itself.
func (s *WorkflowService) RunScheduled(ctx context.Context, workflowName string, input map[string]any, triggerSource, tenantID string) error {
	_, err := s.ExecuteWorkflow(ctx, ExecuteRequest{
		Workflow:      workflowName,
		Input:         input,
		TriggerType:   schema.TriggerScheduled,
		TriggerSource: triggerSource,
		TenantID:      tenantID,
	})
	return err
}

// CreateTriggerRequest carries the fields for registering a scheduled trigger.
type CreateTriggerRequest struct {
	WorkflowName   string         `json:"workflow_name"`
	CronExpression string         `json:"cron_expression"`
	Params         map[string]any `json:"params,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
}

// CreateScheduledTrigger validates and registers a cron trigger for an
// existing workflow.
func (s *WorkflowService) CreateScheduledTrigger(ctx context.Context, req CreateTriggerRequest) (*store.ScheduledTrigger, error) {
	if req.WorkflowName == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow_name is required")
	}
	if _, err := s.store.GetWorkflowByName(ctx, req.WorkflowName); err != nil {
		return nil, err
	}
	sched, err := cronParser.Parse(req.CronExpression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid cron expression %q: %s", req.CronExpression, err.Error()).WithCause(err)
	}

	now := time.Now().UTC()
	next := sched.Next(now)
	trig := &store.ScheduledTrigger{
		ID:             uuid.NewString(),
		WorkflowName:   req.WorkflowName,
		CronExpression: req.CronExpression,
		Params:         req.Params,
		TenantID:       req.TenantID,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.store.CreateScheduledTrigger(ctx, trig); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "scheduled trigger registered",
		slog.String("workflow", trig.WorkflowName),
		slog.String("cron", trig.CronExpression))
	return trig, nil
}

// ListScheduledTriggers lists triggers, optionally only enabled ones.
func (s *WorkflowService) ListScheduledTriggers(ctx context.Context, enabledOnly bool) ([]*store.ScheduledTrigger, error) {
	return s.store.ListScheduledTriggers(ctx, enabledOnly)
}

// SetTriggerEnabled enables or disables a trigger.
func (s *WorkflowService) SetTriggerEnabled(ctx context.Context, id string, enabled bool) error {
	return s.store.UpdateScheduledTrigger(ctx, id, store.ScheduledTriggerUpdate{Enabled: &enabled})
}

// DeleteScheduledTrigger removes a trigger.
func (s *WorkflowService) DeleteScheduledTrigger(ctx context.Context, id string) error {
	return s.store.DeleteScheduledTrigger(ctx, id)
}
