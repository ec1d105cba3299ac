package workflow

import "testing"

func TestRender_Placeholders(t *testing.T) {
	vars := map[string]interface{}{
		"name": "Ada",
		"doc": map[string]interface{}{
			"title": "Report",
			"pages": []interface{}{"p1", "p2"},
		},
		"count": float64(3),
	}

	tests := []struct {
		template, want string
	}{
		{"Hello {{ name }}", "Hello Ada"},
		{"{{ doc.title }}", "Report"},
		{"{{ doc.pages.1 }}", "p2"},
		{"{{ count }} items", "3 items"},
		{"{{ missing }}", ""},
		{"{{ doc.pages.7 }}", ""},
		{"no placeholders", "no placeholders"},
	}

	for _, tt := range tests {
		if got := Render(tt.template, vars); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestRender_NonScalarAsJSON(t *testing.T) {
	vars := map[string]interface{}{
		"obj":  map[string]interface{}{"a": float64(1)},
		"list": []interface{}{"x", "y"},
	}

	if got := Render("{{ obj }}", vars); got != `{"a":1}` {
		t.Errorf("object expansion = %q", got)
	}
	if got := Render("{{ list }}", vars); got != `["x","y"]` {
		t.Errorf("list expansion = %q", got)
	}
}

func TestRender_Conditionals(t *testing.T) {
	vars := map[string]interface{}{
		"show":  true,
		"hide":  false,
		"name":  "Ada",
		"empty": "",
	}

	tests := []struct {
		template, want string
	}{
		{"{{#if show}}yes{{/if}}", "yes"},
		{"{{#if hide}}yes{{/if}}", ""},
		{"{{#if empty}}yes{{/if}}", ""},
		{"{{#if missing}}yes{{/if}}", ""},
		{"a{{#if show}}b{{#if name}}c{{/if}}d{{/if}}e", "abcde"},
		{"a{{#if hide}}b{{#if name}}c{{/if}}d{{/if}}e", "ae"},
		{"{{#if show}}hi {{ name }}{{/if}}", "hi Ada"},
	}

	for _, tt := range tests {
		if got := Render(tt.template, vars); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestRender_UnbalancedLeftVerbatim(t *testing.T) {
	vars := map[string]interface{}{"show": true}

	in := "before {{#if show}} body without close"
	if got := Render(in, vars); got != in {
		t.Errorf("unbalanced input changed: %q", got)
	}
}

func TestRender_Deterministic(t *testing.T) {
	vars := map[string]interface{}{
		"a": map[string]interface{}{"b": []interface{}{float64(1), "two"}},
	}
	template := "{{ a }} / {{ a.b.0 }} / {{#if a}}x{{/if}}"

	first := Render(template, vars)
	for i := 0; i < 10; i++ {
		if got := Render(template, vars); got != first {
			t.Fatalf("render not deterministic: %q vs %q", got, first)
		}
	}
}

func TestLookupPath(t *testing.T) {
	vars := map[string]interface{}{
		"a": map[string]interface{}{"b": []interface{}{"zero", "one"}},
	}

	if v, ok := LookupPath(vars, "a.b.1"); !ok || v != "one" {
		t.Errorf("LookupPath(a.b.1) = %v, %v", v, ok)
	}
	if _, ok := LookupPath(vars, "a.b.x"); ok {
		t.Error("non-integer index into list should miss")
	}
	if _, ok := LookupPath(vars, ""); ok {
		t.Error("empty path should miss")
	}
}
