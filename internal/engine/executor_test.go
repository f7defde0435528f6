package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/pkg/schema"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(registry.NewService("crm", map[string]registry.Method{
		"create_contact": func(_ context.Context, params map[string]any) (any, error) {
			return map[string]any{"id": "c-1", "email": params["email"]}, nil
		},
	})))
	return reg
}

// --- service_call ---

func TestStepExecutor_ServiceCall(t *testing.T) {
	e := NewStepExecutor(testRegistry(t))
	wctx := map[string]any{"email": "a@b.co"}

	out, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:    "create",
		Type:    schema.StepTypeServiceCall,
		Service: "crm",
		Method:  "create_contact",
		Params:  map[string]any{"email": "${email}"},
	}, wctx)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "c-1", m["id"])
	assert.Equal(t, "a@b.co", m["email"])
}

func TestStepExecutor_ServiceCall_UnknownService(t *testing.T) {
	e := NewStepExecutor(testRegistry(t))

	_, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:    "x",
		Type:    schema.StepTypeServiceCall,
		Service: "erp",
		Method:  "sync",
	}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestStepExecutor_ServiceCall_NoRegistry(t *testing.T) {
	e := NewStepExecutor(nil)

	_, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:    "x",
		Type:    schema.StepTypeServiceCall,
		Service: "crm",
		Method:  "create_contact",
	}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

// --- transform ---

func TestStepExecutor_TransformMap(t *testing.T) {
	e := NewStepExecutor(nil)
	wctx := map[string]any{
		"step_create_result": map[string]any{"id": "c-1"},
		"region":             "eu",
	}

	out, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:          "shape",
		Type:          schema.StepTypeTransform,
		TransformType: schema.TransformMap,
		Mapping: map[string]string{
			"contact_id": "${step_create_result.id}",
			"zone":       "${region}",
			"constant":   "fixed",
		},
	}, wctx)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "c-1", m["contact_id"])
	assert.Equal(t, "eu", m["zone"])
	assert.Equal(t, "fixed", m["constant"])
}

func TestStepExecutor_TransformFilter(t *testing.T) {
	e := NewStepExecutor(nil)
	wctx := map[string]any{
		"orders": []any{
			map[string]any{"total": 120.0},
			map[string]any{"total": 30.0},
			map[string]any{"total": 90.0},
		},
	}

	out, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:          "big_orders",
		Type:          schema.StepTypeTransform,
		TransformType: schema.TransformFilter,
		Source:        "${orders}",
		Condition: &schema.Condition{
			Operator: schema.OpGte,
			Left:     "${total}",
			Right:    90,
		},
	}, wctx)
	require.NoError(t, err)

	kept := out.([]any)
	require.Len(t, kept, 2)
	assert.Equal(t, 120.0, kept[0].(map[string]any)["total"])
	assert.Equal(t, 90.0, kept[1].(map[string]any)["total"])
}

func TestStepExecutor_TransformFilter_SourceNotList(t *testing.T) {
	e := NewStepExecutor(nil)

	_, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:          "f",
		Type:          schema.StepTypeTransform,
		TransformType: schema.TransformFilter,
		Source:        "${missing}",
		Condition:     &schema.Condition{Operator: schema.OpEq, Left: 1, Right: 1},
	}, map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestStepExecutor_TransformUnknownType(t *testing.T) {
	e := NewStepExecutor(nil)

	_, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:          "t",
		Type:          schema.StepTypeTransform,
		TransformType: "reduce",
	}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- condition ---

func TestStepExecutor_ConditionStep(t *testing.T) {
	e := NewStepExecutor(nil)
	wctx := map[string]any{"amount": 500}

	out, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name:      "gate",
		Type:      schema.StepTypeCondition,
		Condition: &schema.Condition{Operator: schema.OpGt, Left: "${amount}", Right: 100},
	}, wctx)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestStepExecutor_ConditionStep_MissingCondition(t *testing.T) {
	e := NewStepExecutor(nil)

	_, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name: "gate",
		Type: schema.StepTypeCondition,
	}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- wait ---

func TestStepExecutor_WaitZeroIsNoop(t *testing.T) {
	e := NewStepExecutor(nil)

	start := time.Now()
	out, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name: "pause",
		Type: schema.StepTypeWait,
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestStepExecutor_WaitCancelled(t *testing.T) {
	e := NewStepExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, &schema.StepDefinition{
		Name:     "pause",
		Type:     schema.StepTypeWait,
		Duration: 5,
	}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeCancelled))
}

// --- unknown type ---

func TestStepExecutor_UnknownStepType(t *testing.T) {
	e := NewStepExecutor(nil)

	_, err := e.Execute(context.Background(), &schema.StepDefinition{
		Name: "x",
		Type: "teleport",
	}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
