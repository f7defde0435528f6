package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilops/flowline/pkg/schema"
)

func echoService() Service {
	return NewService("echo", map[string]Method{
		"say": func(_ context.Context, params map[string]any) (any, error) {
			return params["msg"], nil
		},
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoService()))

	svc, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", svc.Name())
	assert.True(t, r.Has("echo"))
	assert.False(t, r.Has("ghost"))
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoService()))
	assert.Error(t, r.Register(echoService()))
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoService()))
	require.NoError(t, r.Register(NewService("other", nil)))

	names := r.List()
	assert.ElementsMatch(t, []string{"echo", "other"}, names)
}

func TestMethodMapService_Call(t *testing.T) {
	svc := echoService()

	out, err := svc.Call(context.Background(), "say", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestMethodMapService_UnknownMethod(t *testing.T) {
	svc := echoService()

	_, err := svc.Call(context.Background(), "shout", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}
