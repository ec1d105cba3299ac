package workflow

import (
	"reflect"
	"testing"
)

func TestApplyTransform_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"upper", "hello", "HELLO"},
		{"lower", "HeLLo", "hello"},
		{"strip", "  padded  ", "padded"},
		{"str", float64(4), "4"},
		{"int", "42", 42},
		{"int", 3.9, 3},
		{"float", "2.5", 2.5},
		{"bool", "", false},
		{"bool", "text", true},
		{"json.dumps", map[string]interface{}{"a": float64(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		if got := ApplyTransform(tt.name, tt.value); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ApplyTransform(%q, %v) = %v (%T), want %v", tt.name, tt.value, got, got, tt.want)
		}
	}
}

func TestApplyTransform_JSONLoads(t *testing.T) {
	got := ApplyTransform("json.loads", `{"k":"v"}`)
	want := map[string]interface{}{"k": "v"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("json.loads = %v, want %v", got, want)
	}

	// Invalid JSON passes the value through.
	if got := ApplyTransform("json.loads", "{broken"); got != "{broken" {
		t.Errorf("invalid json.loads = %v, want passthrough", got)
	}
}

func TestApplyTransform_DumpsThenLoadsIsIdentity(t *testing.T) {
	for _, value := range []interface{}{"text", float64(12), true} {
		dumped := ApplyTransform("json.dumps", value)
		loaded := ApplyTransform("json.loads", dumped)
		if !reflect.DeepEqual(loaded, value) {
			t.Errorf("loads(dumps(%v)) = %v", value, loaded)
		}
	}
}

func TestApplyTransform_SplitJoin(t *testing.T) {
	split := ApplyTransform("split(',')", "a,b,c")
	want := []interface{}{"a", "b", "c"}
	if !reflect.DeepEqual(split, want) {
		t.Fatalf("split = %v, want %v", split, want)
	}

	joined := ApplyTransform("join('-')", split)
	if joined != "a-b-c" {
		t.Errorf("join = %v, want a-b-c", joined)
	}
}

func TestApplyTransform_UnknownPassthrough(t *testing.T) {
	if got := ApplyTransform("reverse", "abc"); got != "abc" {
		t.Errorf("unknown transform = %v, want passthrough", got)
	}
	if got := ApplyTransform("frobnicate('x')", "abc"); got != "abc" {
		t.Errorf("unknown arg transform = %v, want passthrough", got)
	}
}
