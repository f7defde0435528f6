package services

import "github.com/anvilops/flowline/internal/registry"

// RegisterBuiltins registers all built-in services in the given registry.
func RegisterBuiltins(reg *registry.Registry, httpCfg HTTPConfig) error {
	all := []registry.Service{
		NewHTTPService(httpCfg),
		NewJQService(),
		NewExprService(),
	}
	for _, svc := range all {
		if err := reg.Register(svc); err != nil {
			return err
		}
	}
	return nil
}
