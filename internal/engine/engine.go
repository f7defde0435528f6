package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anvilops/flowline/internal/events"
	"github.com/anvilops/flowline/internal/expressions"
	"github.com/anvilops/flowline/internal/logging"
	"github.com/anvilops/flowline/internal/metrics"
	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/pkg/schema"
)

// Engine drives workflow executions: it owns the working context, runs steps
// in definition order through the retry controller, and persists every state
// change before moving on.
type Engine struct {
	store     store.Store
	registry  registry.ServiceRegistry
	publisher events.Publisher
	executor  *StepExecutor
	retrier   *RetryController
	fsm       *executionFSM
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the event bus publisher. Without one, lifecycle events
// are only recorded in the store's event log.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics enables metric collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(s store.Store, reg registry.ServiceRegistry, logger *slog.Logger, opts ...Option) *Engine {
	executor := NewStepExecutor(reg)
	e := &Engine{
		store:    s,
		registry: reg,
		executor: executor,
		retrier:  NewRetryController(s, executor, logger),
		fsm:      &executionFSM{store: s},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		e.retrier.onRetry = e.metrics.StepRetries.Inc
	}
	return e
}

// Execute runs the workflow synchronously and returns the finished execution
// record. The record is persisted in a terminal state regardless of outcome;
// on failure both the record and the error are returned.
func (e *Engine) Execute(ctx context.Context, wf *store.Workflow, input map[string]any, trigger schema.TriggerType, source, tenantID string) (*store.Execution, error) {
	exec := &store.Execution{
		ID:            uuid.NewString(),
		WorkflowID:    wf.ID,
		WorkflowName:  wf.Name,
		Status:        schema.ExecutionStatusPending,
		Context:       input,
		TriggerType:   trigger,
		TriggerSource: source,
		TenantID:      tenantID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"create execution: %s", err.Error()).WithCause(err)
	}

	ctx = logging.WithExecutionID(ctx, exec.ID)
	if tenantID != "" {
		ctx = logging.WithTenantID(ctx, tenantID)
	}

	startedAt := time.Now().UTC()
	if err := e.fsm.Transition(ctx, exec.ID, exec.Status, schema.ExecutionStatusRunning); err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatusRunning
	exec.StartedAt = &startedAt
	if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Status:    &exec.Status,
		StartedAt: exec.StartedAt,
	}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"update execution: %s", err.Error()).WithCause(err)
	}
	if e.metrics != nil {
		e.metrics.ExecutionsStarted.WithLabelValues(string(trigger)).Inc()
	}
	e.logger.InfoContext(ctx, "execution started",
		slog.String("workflow", wf.Name),
		slog.String("trigger", string(trigger)))

	result, runErr := e.runSteps(ctx, exec, &wf.Definition, input)

	completedAt := time.Now().UTC()
	if runErr != nil {
		e.finish(ctx, exec, schema.ExecutionStatusFailed, nil, runErr.Error(), completedAt)
		e.publishEvent(ctx, schema.EventExecutionFailed, map[string]any{
			"execution_id":  exec.ID,
			"workflow_name": exec.WorkflowName,
			"error":         runErr.Error(),
			"tenant_id":     exec.TenantID,
		})
		e.observeFinish(exec, startedAt, completedAt)
		return exec, runErr
	}

	e.finish(ctx, exec, schema.ExecutionStatusCompleted, result, "", completedAt)
	e.publishEvent(ctx, schema.EventExecutionCompleted, map[string]any{
		"execution_id":  exec.ID,
		"workflow_name": exec.WorkflowName,
		"result":        result,
		"tenant_id":     exec.TenantID,
	})
	e.observeFinish(exec, startedAt, completedAt)
	e.logger.InfoContext(ctx, "execution completed",
		slog.String("workflow", wf.Name),
		slog.Duration("duration", completedAt.Sub(startedAt)))
	return exec, nil
}

// runSteps executes the definition's steps in order against a working context
// seeded from the trigger input. Each step's result lands in the context under
// step_<name>_result before the next step runs. A step's gating condition is
// evaluated after the step itself, against the updated context; a false
// outcome ends the workflow early without marking it failed.
func (e *Engine) runSteps(ctx context.Context, exec *store.Execution, def *schema.WorkflowDefinition, input map[string]any) (map[string]any, error) {
	wctx := make(map[string]any, len(input)+len(def.Steps))
	for k, v := range input {
		wctx[k] = v
	}
	results := make(map[string]any, len(def.Steps))

	for i := range def.Steps {
		stepDef := &def.Steps[i]
		stepCtx := logging.WithStepName(ctx, stepDef.Name)

		step := &store.ExecutionStep{
			ID:             uuid.NewString(),
			ExecutionID:    exec.ID,
			Name:           stepDef.Name,
			Type:           stepDef.Type,
			SequenceNumber: i,
			Status:         schema.StepStatusPending,
			InputData:      resolveInput(stepDef, wctx),
			MaxRetries:     stepDef.RetryLimit(),
		}
		if err := e.store.CreateStep(ctx, step); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"create step: %s", err.Error()).WithStep(stepDef.Name).WithCause(err)
		}
		e.appendStepEvent(stepCtx, exec.ID, stepDef.Name, schema.EventStepStarted, nil)
		e.logger.InfoContext(stepCtx, "step started",
			slog.String("type", string(stepDef.Type)),
			slog.Int("sequence", i))

		res, err := e.retrier.Run(ctx, step, stepDef, wctx)
		if err != nil {
			e.appendStepEvent(stepCtx, exec.ID, stepDef.Name, schema.EventStepFailed,
				map[string]any{"error": err.Error()})
			e.logger.ErrorContext(stepCtx, "step failed", slog.String("error", err.Error()))
			return nil, err
		}

		results[stepDef.Name] = res
		wctx["step_"+stepDef.Name+"_result"] = res
		e.appendStepEvent(stepCtx, exec.ID, stepDef.Name, schema.EventStepCompleted, nil)
		e.logger.InfoContext(stepCtx, "step completed",
			slog.Int64("duration_seconds", step.DurationSeconds))

		if stepDef.Condition != nil {
			proceed, err := expressions.EvaluateCondition(stepDef.Condition, wctx)
			if err != nil {
				return nil, err
			}
			if !proceed {
				e.logger.InfoContext(stepCtx, "condition not met, ending workflow early")
				break
			}
		}
	}

	return map[string]any{
		"steps":         results,
		"final_context": wctx,
	}, nil
}

// resolveInput produces the input_data recorded on the step: the explicit
// input block when present, otherwise the step's params, with context
// references resolved either way.
func resolveInput(def *schema.StepDefinition, wctx map[string]any) map[string]any {
	if def.Input != nil {
		return expressions.ResolveParams(def.Input, wctx)
	}
	if def.Params != nil {
		return expressions.ResolveParams(def.Params, wctx)
	}
	return nil
}

// finish moves the execution to a terminal state and persists the outcome.
// Transition or store errors here are logged, not propagated; the run's own
// error (if any) takes precedence.
func (e *Engine) finish(ctx context.Context, exec *store.Execution, status schema.ExecutionStatus, result map[string]any, errMsg string, completedAt time.Time) {
	if err := e.fsm.Transition(ctx, exec.ID, exec.Status, status); err != nil {
		e.logger.ErrorContext(ctx, "record execution transition",
			slog.String("error", err.Error()))
	}
	exec.Status = status
	exec.Result = result
	exec.ErrorMessage = errMsg
	exec.CompletedAt = &completedAt

	update := store.ExecutionUpdate{
		Status:      &status,
		Result:      result,
		CompletedAt: &completedAt,
	}
	if errMsg != "" {
		update.ErrorMessage = &errMsg
	}
	if err := e.store.UpdateExecution(ctx, exec.ID, update); err != nil {
		e.logger.ErrorContext(ctx, "persist execution outcome",
			slog.String("error", err.Error()))
	}
}

// Cancel moves a pending or running execution to cancelled. Cancelling a
// terminal execution is a conflict.
func (e *Engine) Cancel(ctx context.Context, executionID string) (*store.Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"execution %s is already %s", executionID, exec.Status)
	}

	ctx = logging.WithExecutionID(ctx, executionID)
	if err := e.fsm.Transition(ctx, exec.ID, exec.Status, schema.ExecutionStatusCancelled); err != nil {
		return nil, err
	}
	completedAt := time.Now().UTC()
	exec.Status = schema.ExecutionStatusCancelled
	exec.CompletedAt = &completedAt
	if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Status:      &exec.Status,
		CompletedAt: &completedAt,
	}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"update execution: %s", err.Error()).WithCause(err)
	}

	e.publishEvent(ctx, schema.EventExecutionCancelled, map[string]any{
		"execution_id":  exec.ID,
		"workflow_name": exec.WorkflowName,
		"tenant_id":     exec.TenantID,
	})
	e.logger.InfoContext(ctx, "execution cancelled")
	return exec, nil
}

// publishEvent emits a lifecycle event on the bus. Delivery failures are
// logged and swallowed; the execution outcome never depends on the bus.
func (e *Engine) publishEvent(ctx context.Context, eventType string, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, eventType, payload); err != nil {
		e.logger.WarnContext(ctx, "publish event",
			slog.String("event", eventType),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) appendStepEvent(ctx context.Context, executionID, stepName, eventType string, payload map[string]any) {
	event := &store.Event{
		ExecutionID: executionID,
		StepName:    stepName,
		Type:        eventType,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			event.Payload = raw
		}
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "append step event",
			slog.String("event", eventType),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) observeFinish(exec *store.Execution, startedAt, completedAt time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ExecutionsFinished.WithLabelValues(string(exec.Status)).Inc()
	e.metrics.ExecutionDuration.Observe(completedAt.Sub(startedAt).Seconds())
}
