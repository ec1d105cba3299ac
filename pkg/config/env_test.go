package config

import (
	"reflect"
	"testing"
)

func TestExpandEnvVarsInData(t *testing.T) {
	t.Setenv("MODEL_NAME", "mistral-small-latest")
	t.Setenv("TEMP", "0.4")
	t.Setenv("FLAG", "true")

	input := map[string]interface{}{
		"model":       "${MODEL_NAME}",
		"temperature": "${TEMP}",
		"enabled":     "${FLAG}",
		"fallback":    "${UNSET_SETTING:-0.7}",
		"mixed":       "model is ${MODEL_NAME}",
		"plain":       "no refs here",
		"nested": []interface{}{
			map[string]interface{}{"simple": "$MODEL_NAME"},
		},
	}

	got := ExpandEnvVarsInData(input).(map[string]interface{})

	// A whole-string reference is re-typed after expansion.
	if got["temperature"] != 0.4 {
		t.Errorf("temperature = %v (%T), want 0.4", got["temperature"], got["temperature"])
	}
	if got["enabled"] != true {
		t.Errorf("enabled = %v, want true", got["enabled"])
	}
	if got["fallback"] != 0.7 {
		t.Errorf("fallback = %v, want the default 0.7", got["fallback"])
	}
	if got["model"] != "mistral-small-latest" {
		t.Errorf("model = %v", got["model"])
	}
	if got["mixed"] != "model is mistral-small-latest" {
		t.Errorf("mixed = %v", got["mixed"])
	}
	if got["plain"] != "no refs here" {
		t.Errorf("plain = %v", got["plain"])
	}

	nested := got["nested"].([]interface{})[0].(map[string]interface{})
	if nested["simple"] != "mistral-small-latest" {
		t.Errorf("nested = %v", nested)
	}
}

func TestExpandEnvVarsInData_NonStringsUntouched(t *testing.T) {
	input := map[string]interface{}{"n": 3, "b": false, "f": 1.5}
	got := ExpandEnvVarsInData(input)
	if !reflect.DeepEqual(got, input) {
		t.Errorf("non-strings changed: %v", got)
	}
}

func TestExpandEnvVars_UnsetBracedIsEmpty(t *testing.T) {
	got := ExpandEnvVarsInData("${DEFINITELY_UNSET_VAR}")
	if got != "" {
		t.Errorf("unset braced var = %q, want empty", got)
	}
}
