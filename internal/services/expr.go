package services

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/pkg/schema"
)

// ExprService exposes expr-lang expressions as the "expr" service with an
// eval method. Params: expression (string, required) and env (map of
// variables, optional). Thread-safe: compiled *vm.Program objects are
// cached and reused across goroutines.
type ExprService struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprService creates the expr service.
func NewExprService() *ExprService {
	return &ExprService{cache: make(map[string]*vm.Program)}
}

func (s *ExprService) Name() string { return "expr" }

func (s *ExprService) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "eval" {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"service %q has no method %q", s.Name(), method)
	}

	expression := stringParam(params, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "expr: empty expression")
	}

	env, _ := params["env"].(map[string]any)
	if env == nil {
		env = map[string]any{}
	}

	prg, err := s.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

func (s *ExprService) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	s.mu.RLock()
	if prg, ok := s.cache[expression]; ok {
		s.mu.RUnlock()
		return prg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prg, ok := s.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	s.cache[expression] = prg
	return prg, nil
}

var _ registry.Service = (*ExprService)(nil)
