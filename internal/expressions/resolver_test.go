package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Resolve ---

func TestResolve_PlainValuePassthrough(t *testing.T) {
	ctx := map[string]any{"user_id": 42}

	assert.Equal(t, "hello", Resolve("hello", ctx))
	assert.Equal(t, 7, Resolve(7, ctx))
	assert.Equal(t, true, Resolve(true, ctx))
	assert.Nil(t, Resolve(nil, ctx))
}

func TestResolve_SimpleReference(t *testing.T) {
	ctx := map[string]any{"user_id": 42}

	assert.Equal(t, 42, Resolve("${user_id}", ctx))
}

func TestResolve_NestedPath(t *testing.T) {
	ctx := map[string]any{
		"user": map[string]any{
			"profile": map[string]any{"email": "ops@example.com"},
		},
	}

	assert.Equal(t, "ops@example.com", Resolve("${user.profile.email}", ctx))
}

func TestResolve_ListIndex(t *testing.T) {
	ctx := map[string]any{
		"items": []any{"a", "b", "c"},
	}

	assert.Equal(t, "b", Resolve("${items.1}", ctx))
}

func TestResolve_MissingPathIsNil(t *testing.T) {
	ctx := map[string]any{"user": map[string]any{"name": "kai"}}

	assert.Nil(t, Resolve("${user.missing}", ctx))
	assert.Nil(t, Resolve("${nothing}", ctx))
	assert.Nil(t, Resolve("${user.name.deeper}", ctx))
}

func TestResolve_IndexOutOfBoundsIsNil(t *testing.T) {
	ctx := map[string]any{"items": []any{"a"}}

	assert.Nil(t, Resolve("${items.5}", ctx))
	assert.Nil(t, Resolve("${items.-1}", ctx))
	assert.Nil(t, Resolve("${items.x}", ctx))
}

func TestResolve_OnlyFullReferencesResolve(t *testing.T) {
	ctx := map[string]any{"a": 1, "b": 2}

	// Embedded references are not interpolated.
	assert.Equal(t, "value: ${a}", Resolve("value: ${a}", ctx))
	assert.Equal(t, "${a} trailing", Resolve("${a} trailing", ctx))
}

func TestResolve_RecursesIntoMaps(t *testing.T) {
	ctx := map[string]any{"id": 9}
	in := map[string]any{
		"outer": map[string]any{"ref": "${id}"},
		"plain": "x",
	}

	out := Resolve(in, ctx).(map[string]any)
	assert.Equal(t, 9, out["outer"].(map[string]any)["ref"])
	assert.Equal(t, "x", out["plain"])
}

func TestResolve_RecursesIntoSlices(t *testing.T) {
	ctx := map[string]any{"id": 9}

	out := Resolve([]any{"${id}", "literal"}, ctx).([]any)
	assert.Equal(t, 9, out[0])
	assert.Equal(t, "literal", out[1])
}

// --- ResolveParams ---

func TestResolveParams(t *testing.T) {
	ctx := map[string]any{
		"step_create_result": map[string]any{"id": "abc"},
	}
	params := map[string]any{
		"entity_id": "${step_create_result.id}",
		"mode":      "full",
	}

	out := ResolveParams(params, ctx)
	require.NotNil(t, out)
	assert.Equal(t, "abc", out["entity_id"])
	assert.Equal(t, "full", out["mode"])
}

func TestResolveParams_Nil(t *testing.T) {
	assert.Nil(t, ResolveParams(nil, map[string]any{}))
}

// --- Lookup ---

func TestLookup_TraversalStopsOnScalar(t *testing.T) {
	ctx := map[string]any{"n": 5}

	assert.Nil(t, Lookup(ctx, "n.anything"))
	assert.Equal(t, 5, Lookup(ctx, "n"))
}
