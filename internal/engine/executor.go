package engine

import (
	"context"
	"time"

	"github.com/anvilops/flowline/internal/expressions"
	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/pkg/schema"
)

// StepExecutor dispatches a single step by its declared type.
// It is stateless: the working context is owned by the engine and passed in
// read-only; the engine performs the write-back of step results.
type StepExecutor struct {
	registry registry.ServiceRegistry
}

// NewStepExecutor creates a StepExecutor backed by the given service registry.
// The registry may be nil, in which case service_call steps fail.
func NewStepExecutor(reg registry.ServiceRegistry) *StepExecutor {
	return &StepExecutor{registry: reg}
}

// Execute runs one step attempt and returns its result.
// Unknown step types fail before any side effect.
func (e *StepExecutor) Execute(ctx context.Context, def *schema.StepDefinition, wctx map[string]any) (any, error) {
	switch def.Type {
	case schema.StepTypeServiceCall:
		return e.executeServiceCall(ctx, def, wctx)
	case schema.StepTypeTransform:
		return e.executeTransform(def, wctx)
	case schema.StepTypeCondition:
		if def.Condition == nil {
			return nil, schema.NewError(schema.ErrCodeValidation,
				"condition step requires a condition").WithStep(def.Name)
		}
		return expressions.EvaluateCondition(def.Condition, wctx)
	case schema.StepTypeWait:
		return nil, e.executeWait(ctx, def)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown step type %q", def.Type).WithStep(def.Name)
	}
}

// executeServiceCall resolves params and dispatches through the registry.
func (e *StepExecutor) executeServiceCall(ctx context.Context, def *schema.StepDefinition, wctx map[string]any) (any, error) {
	if e.registry == nil {
		return nil, schema.NewError(schema.ErrCodeExecution,
			"no service registry configured").WithStep(def.Name)
	}
	svc, err := e.registry.Get(def.Service)
	if err != nil {
		return nil, err
	}
	params := expressions.ResolveParams(def.Params, wctx)
	return svc.Call(ctx, def.Method, params)
}

// executeTransform applies a map or filter transform against the working context.
func (e *StepExecutor) executeTransform(def *schema.StepDefinition, wctx map[string]any) (any, error) {
	switch def.TransformType {
	case schema.TransformMap:
		out := make(map[string]any, len(def.Mapping))
		for target, path := range def.Mapping {
			out[target] = expressions.Resolve(path, wctx)
		}
		return out, nil

	case schema.TransformFilter:
		source := expressions.Resolve(def.Source, wctx)
		items, ok := source.([]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"filter source is not a list (got %T)", source).WithStep(def.Name)
		}
		if def.Condition == nil {
			return nil, schema.NewError(schema.ErrCodeValidation,
				"filter transform requires a condition").WithStep(def.Name)
		}
		kept := make([]any, 0, len(items))
		for _, item := range items {
			// Each element is the resolution context for its own predicate;
			// non-map elements resolve every reference to nil.
			elemCtx, _ := item.(map[string]any)
			match, err := expressions.EvaluateCondition(def.Condition, elemCtx)
			if err != nil {
				return nil, err
			}
			if match {
				kept = append(kept, item)
			}
		}
		return kept, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown transform type %q", def.TransformType).WithStep(def.Name)
	}
}

// executeWait suspends for the configured duration; zero is a no-op.
func (e *StepExecutor) executeWait(ctx context.Context, def *schema.StepDefinition) error {
	if def.Duration <= 0 {
		return nil
	}
	d := time.Duration(def.Duration * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return schema.NewErrorf(schema.ErrCodeCancelled,
			"wait interrupted: %s", ctx.Err()).WithStep(def.Name).WithCause(ctx.Err())
	}
}
