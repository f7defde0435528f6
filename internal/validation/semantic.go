package validation

import (
	"fmt"
	"time"

	"github.com/anvilops/flowline/pkg/schema"
)

// ServiceLookup reports whether a service name is registered.
// Satisfied by registry.Registry.
type ServiceLookup interface {
	Has(name string) bool
}

// validateSemantic performs semantic analysis on the workflow definition.
// Checks: unique step names, per-type required fields, service registration,
// retry config sanity.
func validateSemantic(def *schema.WorkflowDefinition, lookup ServiceLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]bool, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		path := fmt.Sprintf("steps[%d]", i)

		if seen[step.Name] {
			result.AddError(path+".name", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = true

		validateStepSemantic(step, path, lookup, result)
	}

	return result
}

func validateStepSemantic(step *schema.StepDefinition, path string, lookup ServiceLookup, result *schema.ValidationResult) {
	switch step.Type {
	case schema.StepTypeServiceCall:
		if step.Service == "" {
			result.AddError(path+".service", schema.ErrCodeValidation,
				"service_call step requires a service")
		} else if lookup != nil && !lookup.Has(step.Service) {
			result.AddError(path+".service", schema.ErrCodeValidation,
				fmt.Sprintf("service %q not registered", step.Service))
		}
		if step.Method == "" {
			result.AddError(path+".method", schema.ErrCodeValidation,
				"service_call step requires a method")
		}

	case schema.StepTypeTransform:
		switch step.TransformType {
		case schema.TransformMap:
			if len(step.Mapping) == 0 {
				result.AddError(path+".mapping", schema.ErrCodeValidation,
					"map transform requires a mapping")
			}
		case schema.TransformFilter:
			if step.Source == nil {
				result.AddError(path+".source", schema.ErrCodeValidation,
					"filter transform requires a source")
			}
			if step.Condition == nil {
				result.AddError(path+".condition", schema.ErrCodeValidation,
					"filter transform requires a condition")
			}
		default:
			result.AddError(path+".transform_type", schema.ErrCodeValidation,
				fmt.Sprintf("unknown transform type %q", step.TransformType))
		}

	case schema.StepTypeCondition:
		if step.Condition == nil {
			result.AddError(path+".condition", schema.ErrCodeValidation,
				"condition step requires a condition")
		}

	case schema.StepTypeWait:
		if step.Duration < 0 {
			result.AddError(path+".duration", schema.ErrCodeValidation,
				"wait duration must not be negative")
		}
	}

	// Backoff sanity: a delay strategy without a delay is a no-op.
	if step.Backoff != "" && step.Backoff != schema.BackoffNone {
		if step.Delay == "" {
			result.AddWarning(path+".delay", schema.ErrCodeValidation,
				fmt.Sprintf("backoff %q has no delay; retries run immediately", step.Backoff))
		} else if _, err := time.ParseDuration(step.Delay); err != nil {
			result.AddError(path+".delay", schema.ErrCodeValidation,
				fmt.Sprintf("invalid delay %q", step.Delay))
		}
	}

	if step.MaxRetries != nil && *step.MaxRetries > 10 {
		result.AddWarning(path+".max_retries", schema.ErrCodeValidation,
			fmt.Sprintf("high retry count (%d) may cause excessive delays", *step.MaxRetries))
	}
}
