package schema

// WorkflowDefinition is the JSON-serializable workflow format.
// Operators provide this when registering a workflow template.
type WorkflowDefinition struct {
	Steps []StepDefinition `json:"steps"`
}

// StepDefinition describes a single step in a workflow.
//
// The type field selects which of the type-specific fields apply:
// service_call uses service/method/params, transform uses
// transform_type/source/mapping/condition, condition uses condition,
// wait uses duration. A condition on any step type additionally acts
// as a gate: evaluated against the working context after the step
// runs, a false result stops the remaining steps.
type StepDefinition struct {
	Name  string         `json:"name"`
	Type  StepType       `json:"type"`
	Input map[string]any `json:"input,omitempty"` // resolved before dispatch, recorded on the step

	// service_call
	Service string         `json:"service,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`

	// transform
	TransformType TransformType     `json:"transform_type,omitempty"`
	Source        any               `json:"source,omitempty"`
	Mapping       map[string]string `json:"mapping,omitempty"`

	// condition step config, transform filter predicate, and step gating
	Condition *Condition `json:"condition,omitempty"`

	// wait
	Duration float64 `json:"duration,omitempty"` // seconds

	MaxRetries *int        `json:"max_retries,omitempty"` // default 3
	Backoff    BackoffKind `json:"backoff,omitempty"`     // default none (immediate retry)
	Delay      string      `json:"delay,omitempty"`       // initial delay, e.g. "500ms"
}

// DefaultMaxRetries is the retry limit applied when a step omits max_retries.
const DefaultMaxRetries = 3

// RetryLimit returns the effective max_retries for the step.
func (s *StepDefinition) RetryLimit() int {
	if s.MaxRetries == nil {
		return DefaultMaxRetries
	}
	if *s.MaxRetries < 0 {
		return 0
	}
	return *s.MaxRetries
}

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeServiceCall StepType = "service_call"
	StepTypeTransform   StepType = "transform"
	StepTypeCondition   StepType = "condition"
	StepTypeWait        StepType = "wait"
)

// TransformType enumerates the supported transform operations.
type TransformType string

const (
	TransformMap    TransformType = "map"
	TransformFilter TransformType = "filter"
)

// BackoffKind enumerates retry delay strategies.
type BackoffKind string

const (
	BackoffNone        BackoffKind = "none"
	BackoffConstant    BackoffKind = "constant"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// Condition is a single comparison evaluated against the working context.
// Left and right are passed through the parameter resolver before comparison.
type Condition struct {
	Operator ConditionOperator `json:"operator"`
	Left     any               `json:"left"`
	Right    any               `json:"right"`
}

// ConditionOperator enumerates the supported comparison operators.
type ConditionOperator string

const (
	OpEq    ConditionOperator = "eq"
	OpNe    ConditionOperator = "ne"
	OpGt    ConditionOperator = "gt"
	OpLt    ConditionOperator = "lt"
	OpGte   ConditionOperator = "gte"
	OpLte   ConditionOperator = "lte"
	OpIn    ConditionOperator = "in"
	OpNotIn ConditionOperator = "not_in"
)

// TriggerType identifies how an execution was started.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerEvent     TriggerType = "event"
	TriggerScheduled TriggerType = "scheduled"
	TriggerAPI       TriggerType = "api"
)
