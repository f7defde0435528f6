package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/internal/engine"
	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/internal/validation"
	"github.com/anvilops/flowline/pkg/schema"
)

func newTestService(t *testing.T) (*WorkflowService, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(registry.NewService("crm", map[string]registry.Method{
		"create": func(_ context.Context, params map[string]any) (any, error) {
			return map[string]any{"id": "c-1"}, nil
		},
	})))

	validator, err := validation.NewWorkflowValidator(reg)
	require.NoError(t, err)

	eng := engine.New(st, reg, logger)
	return NewWorkflowService(st, eng, validator, logger), st
}

func createRequest(name string) CreateWorkflowRequest {
	return CreateWorkflowRequest{
		Name: name,
		Definition: schema.WorkflowDefinition{Steps: []schema.StepDefinition{
			{Name: "create", Type: schema.StepTypeServiceCall, Service: "crm", Method: "create"},
		}},
	}
}

// --- Registration ---

func TestWorkflowService_CreateWorkflow(t *testing.T) {
	svc, _ := newTestService(t)

	wf, err := svc.CreateWorkflow(context.Background(), createRequest("onboarding"))
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "onboarding", wf.Name)
	assert.Equal(t, "1.0.0", wf.Version)
	assert.True(t, wf.Active)
}

func TestWorkflowService_CreateWorkflow_DuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateWorkflow(ctx, createRequest("dup"))
	require.NoError(t, err)

	_, err = svc.CreateWorkflow(ctx, createRequest("dup"))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestWorkflowService_CreateWorkflow_InvalidDefinition(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		Name:       "bad",
		Definition: schema.WorkflowDefinition{},
	})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestWorkflowService_UpdateWorkflow_RejectsInvalidDefinition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	wf, err := svc.CreateWorkflow(ctx, createRequest("up"))
	require.NoError(t, err)

	bad := schema.WorkflowDefinition{}
	_, err = svc.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{Definition: &bad})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- Execution ---

func TestWorkflowService_ExecuteWorkflow_ByName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateWorkflow(ctx, createRequest("run-me"))
	require.NoError(t, err)

	exec, err := svc.ExecuteWorkflow(ctx, ExecuteRequest{Workflow: "run-me"})
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, schema.TriggerManual, exec.TriggerType)
}

func TestWorkflowService_ExecuteWorkflow_ByID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	wf, err := svc.CreateWorkflow(ctx, createRequest("by-id"))
	require.NoError(t, err)

	exec, err := svc.ExecuteWorkflow(ctx, ExecuteRequest{Workflow: wf.ID})
	require.NoError(t, err)
	assert.Equal(t, wf.ID, exec.WorkflowID)
}

func TestWorkflowService_ExecuteWorkflow_Inactive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	wf, err := svc.CreateWorkflow(ctx, createRequest("off"))
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.ExecuteWorkflow(ctx, ExecuteRequest{Workflow: "off"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestWorkflowService_ExecuteWorkflow_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ExecuteWorkflow(context.Background(), ExecuteRequest{Workflow: "ghost"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestWorkflowService_ListExecutionSteps(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateWorkflow(ctx, createRequest("steps"))
	require.NoError(t, err)

	exec, err := svc.ExecuteWorkflow(ctx, ExecuteRequest{Workflow: "steps"})
	require.NoError(t, err)

	steps, err := svc.ListExecutionSteps(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "create", steps[0].Name)

	_, err = svc.ListExecutionSteps(ctx, "ghost")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

// --- Triggers ---

func TestWorkflowService_CreateScheduledTrigger(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateWorkflow(ctx, createRequest("cron-me"))
	require.NoError(t, err)

	trig, err := svc.CreateScheduledTrigger(ctx, CreateTriggerRequest{
		WorkflowName:   "cron-me",
		CronExpression: "*/5 * * * *",
	})
	require.NoError(t, err)
	assert.True(t, trig.Enabled)
	require.NotNil(t, trig.NextRunAt)
	assert.True(t, trig.NextRunAt.After(trig.CreatedAt))
}

func TestWorkflowService_CreateScheduledTrigger_BadCron(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateWorkflow(ctx, createRequest("cron-bad"))
	require.NoError(t, err)

	_, err = svc.CreateScheduledTrigger(ctx, CreateTriggerRequest{
		WorkflowName:   "cron-bad",
		CronExpression: "whenever",
	})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestWorkflowService_CreateScheduledTrigger_UnknownWorkflow(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateScheduledTrigger(context.Background(), CreateTriggerRequest{
		WorkflowName:   "ghost",
		CronExpression: "* * * * *",
	})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
