package expressions

import (
	"reflect"
	"strings"

	"github.com/anvilops/flowline/pkg/schema"
)

// EvaluateCondition resolves both operands against the context and applies
// the operator. Ordering operators require mutually comparable operands
// (numbers or strings); membership operators accept slices, strings, and
// maps (key membership) on the right-hand side.
func EvaluateCondition(cond *schema.Condition, context map[string]any) (bool, error) {
	if cond == nil {
		return false, schema.NewError(schema.ErrCodeValidation, "condition is nil")
	}

	left := Resolve(cond.Left, context)
	right := Resolve(cond.Right, context)

	switch cond.Operator {
	case schema.OpEq:
		return valuesEqual(left, right), nil
	case schema.OpNe:
		return !valuesEqual(left, right), nil
	case schema.OpGt, schema.OpLt, schema.OpGte, schema.OpLte:
		c, err := compareValues(left, right)
		if err != nil {
			return false, err
		}
		switch cond.Operator {
		case schema.OpGt:
			return c > 0, nil
		case schema.OpLt:
			return c < 0, nil
		case schema.OpGte:
			return c >= 0, nil
		default:
			return c <= 0, nil
		}
	case schema.OpIn:
		return contains(right, left)
	case schema.OpNotIn:
		ok, err := contains(right, left)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown condition operator %q", cond.Operator)
	}
}

// valuesEqual compares with numeric normalization: JSON decoding produces
// float64 while service results may carry native ints.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

// compareValues returns -1, 0, or 1. Only numbers and strings have an ordering.
func compareValues(a, b any) (int, error) {
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, notComparable(a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if as, ok := a.(string); ok {
		bs, bok := b.(string)
		if !bok {
			return 0, notComparable(a, b)
		}
		return strings.Compare(as, bs), nil
	}
	return 0, notComparable(a, b)
}

func notComparable(a, b any) error {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"operands %T and %T are not comparable", a, b)
}

// contains reports membership of needle in haystack.
func contains(haystack, needle any) (bool, error) {
	switch h := haystack.(type) {
	case []any:
		for _, el := range h {
			if valuesEqual(el, needle) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"membership in a string requires a string operand, got %T", needle)
		}
		return strings.Contains(h, s), nil
	case map[string]any:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := h[s]
		return found, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"right operand of type %T does not support membership", haystack)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
