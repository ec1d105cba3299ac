package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Template syntax: {{ path }} placeholders with dotted access into the
// variables map (integer segments index into sequences), and conditional
// {{#if path}} ... {{/if}} blocks included when the path is truthy.
// Rendering is deterministic: the same template and variables always yield
// the same string. Missing paths expand to the empty string; unbalanced #if
// blocks are left verbatim.

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}#/\s][^{}]*?)\s*\}\}`)

const (
	ifOpenPrefix = "{{#if"
	ifClose      = "{{/if}}"
)

// Render expands a template against the variables map.
func Render(template string, vars map[string]interface{}) string {
	rendered := renderConditionals(template, vars)
	return placeholderPattern.ReplaceAllStringFunc(rendered, func(match string) string {
		path := strings.TrimSpace(strings.Trim(match, "{}"))
		value, ok := LookupPath(vars, path)
		if !ok || value == nil {
			return ""
		}
		return Stringify(value)
	})
}

// renderConditionals resolves {{#if}} blocks, innermost-last via recursion.
func renderConditionals(template string, vars map[string]interface{}) string {
	var out strings.Builder
	rest := template

	for {
		open := strings.Index(rest, ifOpenPrefix)
		if open < 0 {
			out.WriteString(rest)
			return out.String()
		}

		openEnd := strings.Index(rest[open:], "}}")
		if openEnd < 0 {
			out.WriteString(rest)
			return out.String()
		}
		openEnd += open + 2

		path := strings.TrimSpace(rest[open+len(ifOpenPrefix) : openEnd-2])

		bodyStart := openEnd
		closeIdx, ok := findMatchingClose(rest, bodyStart)
		if !ok {
			// Unbalanced block: leave everything from the opener verbatim.
			out.WriteString(rest)
			return out.String()
		}

		out.WriteString(rest[:open])

		value, found := LookupPath(vars, path)
		if found && isTruthy(value) {
			body := rest[bodyStart:closeIdx]
			out.WriteString(renderConditionals(body, vars))
		}

		rest = rest[closeIdx+len(ifClose):]
	}
}

// findMatchingClose locates the {{/if}} balancing the block whose body
// starts at offset, skipping over nested blocks.
func findMatchingClose(s string, offset int) (int, bool) {
	depth := 1
	pos := offset
	for {
		nextOpen := strings.Index(s[pos:], ifOpenPrefix)
		nextClose := strings.Index(s[pos:], ifClose)
		if nextClose < 0 {
			return 0, false
		}
		if nextOpen >= 0 && nextOpen < nextClose {
			depth++
			pos += nextOpen + len(ifOpenPrefix)
			continue
		}
		depth--
		if depth == 0 {
			return pos + nextClose, true
		}
		pos += nextClose + len(ifClose)
	}
}

// LookupPath resolves a dotted path into nested maps and sequences.
// Integer segments index into sequences.
func LookupPath(vars map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = vars
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify renders a value for template expansion: scalars verbatim,
// everything else as compact JSON.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return true
	}
}
