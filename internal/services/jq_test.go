package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/pkg/schema"
)

func TestJQService_Eval(t *testing.T) {
	svc := NewJQService()

	out, err := svc.Call(context.Background(), "eval", map[string]any{
		"expression": ".items | length",
		"data":       map[string]any{"items": []any{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestJQService_SingleOutputUnwrapped(t *testing.T) {
	svc := NewJQService()

	out, err := svc.Call(context.Background(), "eval", map[string]any{
		"expression": ".name",
		"data":       map[string]any{"name": "flowline"},
	})
	require.NoError(t, err)
	assert.Equal(t, "flowline", out)
}

func TestJQService_MultipleOutputsCollected(t *testing.T) {
	svc := NewJQService()

	out, err := svc.Call(context.Background(), "eval", map[string]any{
		"expression": ".items[]",
		"data":       map[string]any{"items": []any{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestJQService_ParseError(t *testing.T) {
	svc := NewJQService()

	_, err := svc.Call(context.Background(), "eval", map[string]any{
		"expression": ".[unclosed",
	})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestJQService_EmptyExpression(t *testing.T) {
	svc := NewJQService()

	_, err := svc.Call(context.Background(), "eval", map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestJQService_UnknownMethod(t *testing.T) {
	svc := NewJQService()

	_, err := svc.Call(context.Background(), "transform", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestJQService_CompiledCacheReuse(t *testing.T) {
	svc := NewJQService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Call(ctx, "eval", map[string]any{
			"expression": ".x",
			"data":       map[string]any{"x": i},
		})
		require.NoError(t, err)
	}
	assert.Len(t, svc.cache, 1)
}
