package services

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/pkg/schema"
)

// JQService exposes jq expressions as the "jq" service with an eval method.
// Params: expression (string, required) and data (the input value, optional).
// Thread-safe: compiled *gojq.Code objects are cached and reused across
// goroutines.
type JQService struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewJQService creates the jq service.
func NewJQService() *JQService {
	return &JQService{cache: make(map[string]*gojq.Code)}
}

func (s *JQService) Name() string { return "jq" }

func (s *JQService) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "eval" {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"service %q has no method %q", s.Name(), method)
	}

	expression := stringParam(params, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "jq: empty expression")
	}

	code, err := s.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, params["data"])

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	// jq expressions can produce multiple outputs; a single output is
	// unwrapped.
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (s *JQService) getOrCompile(expression string) (*gojq.Code, error) {
	s.mu.RLock()
	if code, ok := s.cache[expression]; ok {
		s.mu.RUnlock()
		return code, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: empty env blocks $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	s.cache[expression] = code
	return code, nil
}

var _ registry.Service = (*JQService)(nil)
