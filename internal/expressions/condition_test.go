package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/pkg/schema"
)

func evalCond(t *testing.T, op schema.ConditionOperator, left, right any, ctx map[string]any) bool {
	t.Helper()
	out, err := EvaluateCondition(&schema.Condition{Operator: op, Left: left, Right: right}, ctx)
	require.NoError(t, err)
	return out
}

// --- Equality ---

func TestEvaluateCondition_Eq(t *testing.T) {
	ctx := map[string]any{"status": "active", "count": 3}

	assert.True(t, evalCond(t, schema.OpEq, "${status}", "active", ctx))
	assert.False(t, evalCond(t, schema.OpEq, "${status}", "inactive", ctx))
	assert.True(t, evalCond(t, schema.OpNe, "${status}", "inactive", ctx))
}

func TestEvaluateCondition_NumericNormalization(t *testing.T) {
	// JSON decoding yields float64, native results carry int.
	ctx := map[string]any{"count": 3}

	assert.True(t, evalCond(t, schema.OpEq, "${count}", 3.0, ctx))
	assert.True(t, evalCond(t, schema.OpEq, 3, 3.0, ctx))
}

func TestEvaluateCondition_EqWithMissingOperand(t *testing.T) {
	ctx := map[string]any{}

	// Missing references resolve to nil, which equals nothing but nil.
	assert.True(t, evalCond(t, schema.OpEq, "${missing}", nil, ctx))
	assert.False(t, evalCond(t, schema.OpEq, "${missing}", "x", ctx))
}

// --- Ordering ---

func TestEvaluateCondition_Ordering(t *testing.T) {
	ctx := map[string]any{"score": 75.0}

	assert.True(t, evalCond(t, schema.OpGt, "${score}", 50, ctx))
	assert.False(t, evalCond(t, schema.OpLt, "${score}", 50, ctx))
	assert.True(t, evalCond(t, schema.OpGte, "${score}", 75, ctx))
	assert.True(t, evalCond(t, schema.OpLte, "${score}", 75, ctx))
	assert.False(t, evalCond(t, schema.OpGte, "${score}", 80, ctx))
}

func TestEvaluateCondition_StringOrdering(t *testing.T) {
	ctx := map[string]any{}

	assert.True(t, evalCond(t, schema.OpLt, "apple", "banana", ctx))
	assert.True(t, evalCond(t, schema.OpGt, "banana", "apple", ctx))
}

func TestEvaluateCondition_OrderingTypeMismatch(t *testing.T) {
	_, err := EvaluateCondition(&schema.Condition{
		Operator: schema.OpGt, Left: "abc", Right: 5,
	}, map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- Membership ---

func TestEvaluateCondition_InSlice(t *testing.T) {
	ctx := map[string]any{"role": "admin"}

	assert.True(t, evalCond(t, schema.OpIn, "${role}", []any{"admin", "owner"}, ctx))
	assert.False(t, evalCond(t, schema.OpIn, "${role}", []any{"viewer"}, ctx))
	assert.True(t, evalCond(t, schema.OpNotIn, "${role}", []any{"viewer"}, ctx))
}

func TestEvaluateCondition_InString(t *testing.T) {
	ctx := map[string]any{}

	assert.True(t, evalCond(t, schema.OpIn, "err", "network error", ctx))
	assert.False(t, evalCond(t, schema.OpIn, "ok", "network error", ctx))
}

func TestEvaluateCondition_InMapKeys(t *testing.T) {
	ctx := map[string]any{"flags": map[string]any{"beta": true}}

	assert.True(t, evalCond(t, schema.OpIn, "beta", "${flags}", ctx))
	assert.False(t, evalCond(t, schema.OpIn, "ga", "${flags}", ctx))
}

// --- Errors ---

func TestEvaluateCondition_UnknownOperator(t *testing.T) {
	_, err := EvaluateCondition(&schema.Condition{
		Operator: "matches", Left: 1, Right: 1,
	}, map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestEvaluateCondition_Nil(t *testing.T) {
	_, err := EvaluateCondition(nil, map[string]any{})
	require.Error(t, err)
}
