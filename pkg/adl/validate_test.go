package adl

import (
	"strings"
	"testing"
)

func validDoc() *Document {
	doc := &Document{
		Identity: Identity{
			ID:          "test-agent",
			Name:        "Test Agent",
			Description: "A test agent",
			Status:      StatusActive,
		},
		BusinessLogic: BusinessLogic{
			SystemPrompt: "You help.",
			LLMProvider:  "mistral",
			Temperature:  0.7,
			MaxTokens:    2048,
		},
		Workflows: WorkflowsSection{
			Workflows: []Workflow{{
				ID:      "main",
				Trigger: TriggerUserMessage,
				Steps: []Step{{
					ID:      "ask",
					Type:    StepLLMCall,
					OnError: OnErrorStop,
					Spec:    LLMCallSpec{PromptTemplate: "{{ message }}"},
				}},
			}},
		},
	}
	return doc
}

func TestValidate_Valid(t *testing.T) {
	result := Validate(validDoc(), ValidateOptions{})
	if !result.Valid() {
		t.Fatalf("Validate() errors = %v", result.FormatErrors())
	}
}

func TestValidate_UnresolvedNextStep(t *testing.T) {
	doc := validDoc()
	doc.Workflows.Workflows[0].Steps[0].NextStep = "Z"

	result := Validate(doc, ValidateOptions{})
	if result.Valid() {
		t.Fatal("Validate() accepted an unresolved next_step")
	}
	if !strings.Contains(result.FormatErrors(), "Z") {
		t.Errorf("errors should name the missing step: %v", result.FormatErrors())
	}
}

func TestValidate_UnresolvedBranchTargets(t *testing.T) {
	doc := validDoc()
	doc.Workflows.Workflows[0].Steps = append(doc.Workflows.Workflows[0].Steps, Step{
		ID:      "check",
		Type:    StepCondition,
		OnError: OnErrorStop,
		Spec: ConditionSpec{
			Condition: Condition{Variable: "x", Operator: "eq", Value: "1"},
			OnTrue:    "nowhere",
		},
	})

	result := Validate(doc, ValidateOptions{})
	if result.Valid() {
		t.Fatal("Validate() accepted an unresolved on_true")
	}
}

func TestValidate_UnresolvedToolConfig(t *testing.T) {
	doc := validDoc()
	doc.Workflows.Workflows[0].Steps[0] = Step{
		ID:      "call",
		Type:    StepToolCall,
		OnError: OnErrorStop,
		Spec:    ToolCallSpec{ToolConfigID: "missing"},
	}

	result := Validate(doc, ValidateOptions{})
	if result.Valid() {
		t.Fatal("Validate() accepted an unresolved tool_config_id")
	}
}

func TestValidate_DefaultConnectorMustResolve(t *testing.T) {
	doc := validDoc()
	doc.Connectors = &ConnectorsSection{
		DefaultConnector: "ghost",
		Connectors:       []ConnectorConfig{{ID: "real", Provider: "openai"}},
	}

	result := Validate(doc, ValidateOptions{})
	if result.Valid() {
		t.Fatal("Validate() accepted an unresolved default_connector")
	}
}

func TestValidate_UnknownToolIDIsWarning(t *testing.T) {
	doc := validDoc()
	doc.Tools.Tools = []ToolConfig{{ID: "c1", ToolID: "nonexistent-tool", OnError: OnErrorStop, TimeoutMs: 1000}}

	result := Validate(doc, ValidateOptions{KnownTools: map[string]bool{"web-search": true}})
	if !result.Valid() {
		t.Fatalf("unknown tool_id should not reject: %v", result.FormatErrors())
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for the unknown tool_id")
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"temperature above 2", func(d *Document) { d.BusinessLogic.Temperature = 2.5 }},
		{"max_tokens zero", func(d *Document) { d.BusinessLogic.MaxTokens = 0 }},
		{"name too long", func(d *Document) { d.Identity.Name = strings.Repeat("x", 101) }},
		{"empty description", func(d *Document) { d.Identity.Description = "" }},
		{"bad status", func(d *Document) { d.Identity.Status = "sleeping" }},
		{"trait intensity", func(d *Document) {
			d.BusinessLogic.PersonalityTraits = []PersonalityTrait{{Name: "warm", Intensity: 3}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(doc)
			if Validate(doc, ValidateOptions{}).Valid() {
				t.Error("Validate() accepted an out-of-range document")
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Support Bot", "support-bot"},
		{"  Déjà  Vu!! ", "d-j-vu"},
		{"already-slugged", "already-slugged"},
		{"UPPER_case 123", "upper-case-123"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugFor_PrefersDeclaredSlug(t *testing.T) {
	doc := validDoc()
	doc.Identity.Slug = "my-slug"
	if got := SlugFor(doc); got != "my-slug" {
		t.Errorf("SlugFor() = %v, want my-slug", got)
	}

	doc.Identity.Slug = ""
	if got := SlugFor(doc); got != "test-agent" {
		t.Errorf("SlugFor() = %v, want test-agent", got)
	}
}
