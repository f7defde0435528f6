package expressions

import (
	"strconv"
	"strings"
)

// Resolve substitutes ${path} template references in value against the
// working context. Strings matching the exact pattern ${<path>} are replaced
// by the value at <path>; maps and slices are resolved recursively; anything
// else passes through unchanged. There is no embedded interpolation: a string
// is either a single reference or a literal.
//
// Resolution never fails. A path that cannot be traversed yields nil.
func Resolve(value any, context map[string]any) any {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			return Lookup(context, v[2:len(v)-1])
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Resolve(item, context)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, context)
		}
		return out
	default:
		return value
	}
}

// ResolveParams resolves every value of a parameter map, keys unchanged.
// A nil map resolves to nil.
func ResolveParams(params map[string]any, context map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = Resolve(v, context)
	}
	return out
}

// Lookup traverses context along a dotted path. Map segments index by key,
// slice segments by non-negative integer. Any miss stops traversal and
// returns nil.
func Lookup(context map[string]any, path string) any {
	var current any = context
	for _, seg := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}
	return current
}
