package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/anvilops/flowline/pkg/schema"
)

// Service is a named collaborator invocable from service_call steps.
// Implementations adapt a platform service (billing, notifications,
// deployments, ...) behind a method-dispatch seam.
type Service interface {
	Name() string
	Call(ctx context.Context, method string, params map[string]any) (any, error)
}

// ServiceRegistry is the name -> instance lookup the engine depends on.
type ServiceRegistry interface {
	Register(svc Service) error
	Get(name string) (Service, error)
	Has(name string) bool
	List() []string
}

// Registry is the concrete thread-safe ServiceRegistry implementation.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds a service to the registry. Returns error on duplicate name.
func (r *Registry) Register(svc Service) error {
	if svc == nil {
		return schema.NewError(schema.ErrCodeValidation, "service is nil")
	}
	name := svc.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "service name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "service %q already registered", name)
	}
	r.services[name] = svc
	return nil
}

// Get retrieves a service by name.
func (r *Registry) Get(name string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "service %q not registered", name)
	}
	return svc, nil
}

// Has checks if a service is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[name]
	return ok
}

// List returns the registered service names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method is a single invocable operation on a service.
type Method func(ctx context.Context, params map[string]any) (any, error)

// methodMapService dispatches calls through a fixed method table.
type methodMapService struct {
	name    string
	methods map[string]Method
}

// NewService builds a Service from a method table. Unknown methods fail
// with an execution error naming the service and method.
func NewService(name string, methods map[string]Method) Service {
	return &methodMapService{name: name, methods: methods}
}

func (s *methodMapService) Name() string { return s.name }

func (s *methodMapService) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	fn, ok := s.methods[method]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"service %q has no method %q", s.name, method)
	}
	return fn(ctx, params)
}
