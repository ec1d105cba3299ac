package workflow

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/wsaadi/nova/pkg/adl"
)

// EvaluateCondition computes the boolean for one condition tree: the base
// comparison ANDed with every and_conditions entry, then ANDed with the OR
// of or_conditions when present.
func EvaluateCondition(cond *adl.Condition, vars map[string]interface{}) bool {
	if cond == nil {
		return true
	}

	result := evaluateLeaf(cond, vars)

	for _, sub := range cond.And {
		result = result && EvaluateCondition(&sub, vars)
	}

	if len(cond.Or) > 0 {
		anyOr := false
		for _, sub := range cond.Or {
			if EvaluateCondition(&sub, vars) {
				anyOr = true
				break
			}
		}
		result = result && anyOr
	}

	return result
}

func evaluateLeaf(cond *adl.Condition, vars map[string]interface{}) bool {
	if cond.Variable == "" && cond.Operator == "" {
		return true
	}

	actual, found := LookupPath(vars, cond.Variable)
	if !found {
		actual = nil
	}

	switch cond.Operator {
	case "eq":
		return equal(actual, cond.Value)
	case "ne":
		return !equal(actual, cond.Value)
	case "gt", "lt", "gte", "lte":
		return compareNumeric(cond.Operator, actual, cond.Value)
	case "contains":
		return contains(actual, cond.Value)
	case "not_contains":
		return !contains(actual, cond.Value)
	case "is_empty":
		return isEmpty(actual)
	case "is_not_empty":
		return !isEmpty(actual)
	case "matches":
		pattern, err := regexp.Compile(Stringify(cond.Value))
		if err != nil {
			slog.Warn("invalid condition regex", "pattern", cond.Value, "error", err)
			return false
		}
		return pattern.MatchString(Stringify(actual))
	default:
		slog.Warn("unknown condition operator", "operator", cond.Operator)
		return false
	}
}

// equal compares loosely: numbers compare as floats, everything else by
// stringified value.
func equal(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if fa, okA := toFloat64(a); okA {
		if fb, okB := toFloat64(b); okB {
			return fa == fb
		}
	}
	return Stringify(a) == Stringify(b)
}

func compareNumeric(op string, a, b interface{}) bool {
	fa, okA := toFloat64(a)
	fb, okB := toFloat64(b)
	if !okA || !okB {
		// Fall back to lexicographic comparison for non-numeric values.
		sa, sb := Stringify(a), Stringify(b)
		switch op {
		case "gt":
			return sa > sb
		case "lt":
			return sa < sb
		case "gte":
			return sa >= sb
		case "lte":
			return sa <= sb
		}
		return false
	}

	switch op {
	case "gt":
		return fa > fb
	case "lt":
		return fa < fb
	case "gte":
		return fa >= fb
	case "lte":
		return fa <= fb
	}
	return false
}

func contains(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case []interface{}:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		_, ok := h[Stringify(needle)]
		return ok
	default:
		return strings.Contains(Stringify(haystack), Stringify(needle))
	}
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
