package workflow

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Transforms are a small whitelisted pipeline applied to step outputs:
// upper, lower, strip, json.loads, json.dumps, str, int, float, bool,
// split('sep'), join('sep'). Unknown names pass the value through untouched
// with a warning, never an error.

var transformArgPattern = regexp.MustCompile(`^(\w+(?:\.\w+)?)\s*\(\s*'([^']*)'\s*\)$`)

// ApplyTransform applies one named transform to a value.
func ApplyTransform(name string, value interface{}) interface{} {
	name = strings.TrimSpace(name)

	if match := transformArgPattern.FindStringSubmatch(name); match != nil {
		return applyArgTransform(match[1], match[2], value)
	}

	switch name {
	case "upper":
		return strings.ToUpper(Stringify(value))
	case "lower":
		return strings.ToLower(Stringify(value))
	case "strip":
		return strings.TrimSpace(Stringify(value))
	case "json.loads":
		var parsed interface{}
		if err := json.Unmarshal([]byte(Stringify(value)), &parsed); err != nil {
			slog.Warn("json.loads transform failed, passing value through", "error", err)
			return value
		}
		return parsed
	case "json.dumps":
		encoded, err := json.Marshal(value)
		if err != nil {
			slog.Warn("json.dumps transform failed, passing value through", "error", err)
			return value
		}
		return string(encoded)
	case "str":
		return Stringify(value)
	case "int":
		return toInt(value)
	case "float":
		return toFloat(value)
	case "bool":
		return isTruthy(value)
	case "":
		return value
	default:
		slog.Warn("unknown transform, passing value through", "transform", name)
		return value
	}
}

func applyArgTransform(name, arg string, value interface{}) interface{} {
	switch name {
	case "split":
		parts := strings.Split(Stringify(value), arg)
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	case "join":
		items, ok := value.([]interface{})
		if !ok {
			return Stringify(value)
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, arg)
	default:
		slog.Warn("unknown transform, passing value through", "transform", name)
		return value
	}
}

func toInt(value interface{}) interface{} {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int(f)
		}
	}
	slog.Warn("int transform failed, passing value through")
	return value
}

func toFloat(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	slog.Warn("float transform failed, passing value through")
	return value
}
