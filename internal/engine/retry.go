package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anvilops/flowline/internal/logging"
	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/pkg/schema"
)

// RetryController wraps step execution with bounded retry, persisting the
// step record state at every attempt. max_retries = k means k+1 attempts in
// total; retries are immediate unless the step configures a backoff.
type RetryController struct {
	store    store.Store
	executor *StepExecutor
	logger   *slog.Logger
	onRetry  func() // metrics hook, may be nil
}

// NewRetryController creates a RetryController.
func NewRetryController(s store.Store, executor *StepExecutor, logger *slog.Logger) *RetryController {
	return &RetryController{store: s, executor: executor, logger: logger}
}

// Run executes the step with retries, mutating and persisting step as it goes.
// On success the result is returned immediately. After exhausting attempts the
// step is marked failed and a RETRY_EXHAUSTED error wrapping the last failure
// propagates, which aborts the parent execution.
func (r *RetryController) Run(ctx context.Context, step *store.ExecutionStep, def *schema.StepDefinition, wctx map[string]any) (any, error) {
	maxRetries := def.RetryLimit()
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		startedAt := time.Now().UTC()
		step.Status = schema.StepStatusRunning
		step.StartedAt = &startedAt
		step.RetryCount = attempt
		if err := r.store.UpdateStep(ctx, step); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"persist step state: %s", err.Error()).WithStep(step.Name).WithCause(err)
		}

		result, err := r.executor.Execute(ctx, def, wctx)
		if err == nil {
			completedAt := time.Now().UTC()
			step.Status = schema.StepStatusCompleted
			step.CompletedAt = &completedAt
			step.OutputData = result
			step.DurationSeconds = int64(completedAt.Sub(startedAt).Seconds())
			if err := r.store.UpdateStep(ctx, step); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"persist step state: %s", err.Error()).WithStep(step.Name).WithCause(err)
			}
			return result, nil
		}

		lastErr = err
		step.ErrorMessage = err.Error()
		step.ErrorDetails = map[string]any{
			"attempt":    attempt + 1,
			"error_type": errorKind(err),
		}

		if attempt < maxRetries {
			if err := r.store.UpdateStep(ctx, step); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"persist step state: %s", err.Error()).WithStep(step.Name).WithCause(err)
			}
			r.logger.WarnContext(logging.WithStepName(ctx, step.Name), "step failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.String("error", err.Error()))
			if r.onRetry != nil {
				r.onRetry()
			}
			if delay := ComputeBackoff(def, attempt); delay > 0 {
				if err := waitForBackoff(ctx, delay); err != nil {
					lastErr = err
					break
				}
			}
		}
	}

	completedAt := time.Now().UTC()
	step.Status = schema.StepStatusFailed
	step.CompletedAt = &completedAt
	if step.StartedAt != nil {
		step.DurationSeconds = int64(completedAt.Sub(*step.StartedAt).Seconds())
	}
	if err := r.store.UpdateStep(ctx, step); err != nil {
		r.logger.ErrorContext(ctx, "persist failed step state",
			slog.String("step", step.Name), slog.String("error", err.Error()))
	}

	return nil, schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"failed after %d attempts: %s", maxRetries+1, lastErr.Error()).
		WithStep(step.Name).WithCause(lastErr)
}

// errorKind classifies the failure for error_details.
func errorKind(err error) string {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fmt.Sprintf("%T", err)
}

// ComputeBackoff calculates the delay before the next retry attempt.
// A step without a backoff config retries immediately.
func ComputeBackoff(def *schema.StepDefinition, attempt int) time.Duration {
	if def.Delay == "" {
		return 0
	}
	base, err := time.ParseDuration(def.Delay)
	if err != nil || base <= 0 {
		return 0
	}
	switch def.Backoff {
	case schema.BackoffExponential:
		multiplier := time.Duration(1)
		for i := 0; i < attempt; i++ {
			multiplier *= 2
		}
		return base * multiplier
	case schema.BackoffLinear:
		return base * time.Duration(attempt+1)
	case schema.BackoffConstant:
		return base
	default: // none or empty
		return 0
	}
}

func waitForBackoff(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return schema.NewErrorf(schema.ErrCodeCancelled,
			"retry backoff interrupted: %s", ctx.Err()).WithCause(ctx.Err())
	}
}
