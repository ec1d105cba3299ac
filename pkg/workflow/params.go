package workflow

import (
	"github.com/wsaadi/nova/pkg/adl"
)

// ResolveParameters builds the tool call's parameter map from the config's
// mappings. Each source reads a different namespace; transforms apply last.
func ResolveParameters(mappings []adl.ParameterMapping, vars, inputs, previousOutputs map[string]interface{}) map[string]interface{} {
	resolved := make(map[string]interface{}, len(mappings))

	for _, mapping := range mappings {
		value := resolveParameter(mapping, vars, inputs, previousOutputs)
		if mapping.Transform != "" {
			value = ApplyTransform(mapping.Transform, value)
		}
		resolved[mapping.Name] = value
	}

	return resolved
}

func resolveParameter(mapping adl.ParameterMapping, vars, inputs, previousOutputs map[string]interface{}) interface{} {
	switch mapping.Source {
	case adl.SourceConstant:
		return mapping.Value

	case adl.SourceInput:
		key := mapping.InputComponent
		if key == "" {
			key = mapping.Name
		}
		if value, ok := inputs[key]; ok {
			return value
		}
		return mapping.Value

	case adl.SourceVariable, adl.SourceContext:
		path := mapping.Name
		if s, ok := mapping.Value.(string); ok && s != "" {
			path = s
		}
		value, _ := LookupPath(vars, path)
		return value

	case adl.SourcePreviousOutput:
		path := mapping.Name
		if s, ok := mapping.Value.(string); ok && s != "" {
			path = s
		}
		value, _ := LookupPath(previousOutputs, path)
		return value

	default:
		return mapping.Value
	}
}
