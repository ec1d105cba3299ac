package adl

import (
	"fmt"
	"strings"
)

// Issue is one validation finding, anchored to a document path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationResult separates rejecting errors from accepted-with-warning
// findings. A document with errors never reaches the registry.
type ValidationResult struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(path, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(path, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// FormatErrors renders all errors as one line per issue.
func (r *ValidationResult) FormatErrors() string {
	lines := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		lines = append(lines, "  - "+issue.String())
	}
	return strings.Join(lines, "\n")
}

var validConditionOperators = map[string]bool{
	"eq": true, "ne": true, "gt": true, "lt": true, "gte": true, "lte": true,
	"contains": true, "not_contains": true,
	"is_empty": true, "is_not_empty": true,
	"matches": true,
}

// ValidateOptions provides cross-document context for validation.
type ValidateOptions struct {
	// KnownTools holds the ids registered in the tool registry. Unknown
	// tool_id values produce warnings, not errors.
	KnownTools map[string]bool
}

// Validate checks shape, enum and range constraints plus every
// cross-reference rule. Errors reject the document; warnings are logged and
// the document is accepted.
func Validate(doc *Document, opts ValidateOptions) *ValidationResult {
	result := &ValidationResult{}

	validateIdentity(doc, result)
	validateBusinessLogic(doc, result)
	validateTools(doc, result, opts)
	validateConnectors(doc, result)
	validateWorkflows(doc, result)
	validateDeployment(doc, result)

	return result
}

func validateIdentity(doc *Document, result *ValidationResult) {
	id := doc.Identity

	if id.ID == "" {
		result.addError("identity.id", "is required")
	}
	if n := len(id.Name); n < 1 || n > 100 {
		result.addError("identity.name", "must be 1..100 characters, got %d", n)
	}
	if n := len(id.Description); n < 1 || n > 500 {
		result.addError("identity.description", "must be 1..500 characters, got %d", n)
	}
	if len(id.LongDescription) > 5000 {
		result.addError("identity.long_description", "must be at most 5000 characters")
	}
	if !validStatuses[id.Status] {
		result.addError("identity.status", "unknown status %q", id.Status)
	}
}

func validateBusinessLogic(doc *Document, result *ValidationResult) {
	bl := doc.BusinessLogic

	if bl.LLMProvider == "" {
		result.addError("business_logic.llm_provider", "is required")
	}
	if bl.Temperature < 0 || bl.Temperature > 2 {
		result.addError("business_logic.temperature", "must be in [0,2], got %v", bl.Temperature)
	}
	if bl.MaxTokens < 1 || bl.MaxTokens > 128000 {
		result.addError("business_logic.max_tokens", "must be in [1,128000], got %d", bl.MaxTokens)
	}
	if bl.TopP != nil && (*bl.TopP < 0 || *bl.TopP > 1) {
		result.addError("business_logic.top_p", "must be in [0,1], got %v", *bl.TopP)
	}
	if bl.TopK != nil && *bl.TopK < 1 {
		result.addError("business_logic.top_k", "must be at least 1, got %d", *bl.TopK)
	}
	if bl.ContextWindowMessages < 0 {
		result.addError("business_logic.context_window_messages", "must not be negative")
	}
	for i, trait := range bl.PersonalityTraits {
		if trait.Intensity < 0 || trait.Intensity > 2 {
			result.addError(fmt.Sprintf("business_logic.personality_traits[%d]", i),
				"intensity must be in [0,2], got %v", trait.Intensity)
		}
	}
}

func validateTools(doc *Document, result *ValidationResult, opts ValidateOptions) {
	tools := doc.Tools

	if tools.MaxParallelTools != 0 && (tools.MaxParallelTools < 1 || tools.MaxParallelTools > 10) {
		result.addError("tools.max_parallel_tools", "must be in [1,10], got %d", tools.MaxParallelTools)
	}
	if tools.DefaultErrorHandling != "" && !validErrorPolicies[tools.DefaultErrorHandling] {
		result.addError("tools.default_error_handling", "unknown policy %q", tools.DefaultErrorHandling)
	}

	seen := map[string]bool{}
	for i, tc := range tools.Tools {
		path := fmt.Sprintf("tools.tools[%d]", i)
		if tc.ID == "" {
			result.addError(path+".id", "is required")
		} else if seen[tc.ID] {
			result.addError(path+".id", "duplicate tool config id %q", tc.ID)
		}
		seen[tc.ID] = true

		if tc.ToolID == "" {
			result.addError(path+".tool_id", "is required")
		} else if opts.KnownTools != nil && !opts.KnownTools[tc.ToolID] {
			result.addWarning(path+".tool_id", "tool %q is not in the tool registry", tc.ToolID)
		}
		if !validErrorPolicies[tc.OnError] {
			result.addError(path+".on_error", "unknown policy %q", tc.OnError)
		}
		if tc.RetryCount < 0 {
			result.addError(path+".retry_count", "must not be negative")
		}
		for j, param := range tc.Parameters {
			if param.Name == "" {
				result.addError(fmt.Sprintf("%s.parameters[%d].name", path, j), "is required")
			}
			if !validParamSources[param.Source] {
				result.addError(fmt.Sprintf("%s.parameters[%d].source", path, j),
					"unknown source %q", param.Source)
			}
		}
	}
}

func validateConnectors(doc *Document, result *ValidationResult) {
	if doc.Connectors == nil {
		return
	}
	conn := doc.Connectors

	ids := map[string]bool{}
	for i, c := range conn.Connectors {
		path := fmt.Sprintf("connectors.connectors[%d]", i)
		if c.ID == "" {
			result.addError(path+".id", "is required")
		}
		if c.Provider == "" {
			result.addError(path+".provider", "is required")
		}
		ids[c.ID] = true
	}

	if conn.DefaultConnector != "" && !ids[conn.DefaultConnector] {
		result.addError("connectors.default_connector",
			"references unknown connector %q", conn.DefaultConnector)
	}
}

func validateWorkflows(doc *Document, result *ValidationResult) {
	uiComponents := collectUIComponentNames(doc.UI)

	for i, wf := range doc.Workflows.Workflows {
		path := fmt.Sprintf("workflows.workflows[%d]", i)

		if wf.ID == "" {
			result.addError(path+".id", "is required")
		}
		if !validTriggers[wf.Trigger] {
			result.addError(path+".trigger", "unknown trigger %q", wf.Trigger)
		}

		refs := stepRefSet(wf.Steps)
		if wf.EntryStep != "" && !refs[wf.EntryStep] {
			result.addError(path+".entry_step", "references unknown step %q", wf.EntryStep)
		}

		validateSteps(doc, wf.Steps, refs, uiComponents, path+".steps", result)
	}

	if dw := doc.Workflows.DefaultWorkflow; dw != "" {
		found := false
		for _, wf := range doc.Workflows.Workflows {
			if wf.ID == dw || wf.Name == dw {
				found = true
				break
			}
		}
		if !found {
			result.addError("workflows.default_workflow", "references unknown workflow %q", dw)
		}
	}
}

// stepRefSet collects every id and name a step reference may resolve to,
// including steps nested in loop bodies and parallel groups.
func stepRefSet(steps []Step) map[string]bool {
	refs := map[string]bool{}
	var walk func([]Step)
	walk = func(list []Step) {
		for _, step := range list {
			if step.ID != "" {
				refs[step.ID] = true
			}
			if step.Name != "" {
				refs[step.Name] = true
			}
			switch spec := step.Spec.(type) {
			case LoopSpec:
				walk(spec.LoopBody)
			case ParallelSpec:
				walk(spec.ParallelSteps)
			}
		}
	}
	walk(steps)
	return refs
}

func validateSteps(doc *Document, steps []Step, refs map[string]bool, uiComponents map[string]bool, path string, result *ValidationResult) {
	for i, step := range steps {
		stepPath := fmt.Sprintf("%s[%d]", path, i)

		if step.ID == "" {
			result.addError(stepPath+".id", "is required")
		}
		if !validStepTypes[step.Type] {
			result.addError(stepPath+".type", "unknown step type %q", step.Type)
		}
		if step.OnError != "" && !validErrorPolicies[step.OnError] {
			result.addError(stepPath+".on_error", "unknown policy %q", step.OnError)
		}
		if step.NextStep != "" && !refs[step.NextStep] {
			result.addError(stepPath+".next_step", "references unknown step %q", step.NextStep)
		}

		switch spec := step.Spec.(type) {
		case ToolCallSpec:
			if spec.ToolConfigID == "" {
				result.addError(stepPath+".tool_config_id", "is required")
			} else if _, ok := findToolConfig(doc, spec.ToolConfigID); !ok {
				result.addError(stepPath+".tool_config_id",
					"references unknown tool config %q", spec.ToolConfigID)
			}
		case LLMCallSpec:
			if spec.ConnectorID != "" {
				if !connectorExists(doc, spec.ConnectorID) {
					result.addError(stepPath+".connector_id",
						"references unknown connector %q", spec.ConnectorID)
				}
			}
		case ConditionSpec:
			if spec.OnTrue != "" && !refs[spec.OnTrue] {
				result.addError(stepPath+".on_true", "references unknown step %q", spec.OnTrue)
			}
			if spec.OnFalse != "" && !refs[spec.OnFalse] {
				result.addError(stepPath+".on_false", "references unknown step %q", spec.OnFalse)
			}
			validateCondition(spec.Condition, stepPath+".condition", result)
		case LoopSpec:
			if spec.LoopVariable == "" {
				result.addError(stepPath+".loop_variable", "is required")
			}
			validateSteps(doc, spec.LoopBody, refs, uiComponents, stepPath+".loop_body", result)
		case ParallelSpec:
			validateSteps(doc, spec.ParallelSteps, refs, uiComponents, stepPath+".parallel_steps", result)
		case UserInputSpec:
			for _, comp := range spec.InputComponents {
				if len(uiComponents) > 0 && !uiComponents[comp] {
					result.addWarning(stepPath+".input_components",
						"component %q does not match any UI component", comp)
				}
			}
		case SetVariableSpec:
			if spec.VariableName == "" {
				result.addError(stepPath+".variable_name", "is required")
			}
		}
	}
}

func validateCondition(cond Condition, path string, result *ValidationResult) {
	if cond.Operator != "" && !validConditionOperators[cond.Operator] {
		result.addError(path+".operator", "unknown operator %q", cond.Operator)
	}
	for i, sub := range cond.And {
		validateCondition(sub, fmt.Sprintf("%s.and_conditions[%d]", path, i), result)
	}
	for i, sub := range cond.Or {
		validateCondition(sub, fmt.Sprintf("%s.or_conditions[%d]", path, i), result)
	}
}

func findToolConfig(doc *Document, id string) (*ToolConfig, bool) {
	for i := range doc.Tools.Tools {
		if doc.Tools.Tools[i].ID == id {
			return &doc.Tools.Tools[i], true
		}
	}
	return nil, false
}

func connectorExists(doc *Document, id string) bool {
	if doc.Connectors == nil {
		return false
	}
	for _, c := range doc.Connectors.Connectors {
		if c.ID == id {
			return true
		}
	}
	return false
}

func validateDeployment(doc *Document, result *ValidationResult) {
	dep := doc.Deployment
	if dep.MinInstances < 0 {
		result.addError("deployment.min_instances", "must not be negative")
	}
	if dep.MaxInstances != 0 && dep.MaxInstances < 1 {
		result.addError("deployment.max_instances", "must be at least 1")
	}
}

// collectUIComponentNames walks the opaque UI descriptor for component
// "name"/"id" string fields. The UI tree itself is never interpreted beyond
// this lookup, which only feeds input_components warnings.
func collectUIComponentNames(ui map[string]interface{}) map[string]bool {
	names := map[string]bool{}
	var walk func(node interface{})
	walk = func(node interface{}) {
		switch v := node.(type) {
		case map[string]interface{}:
			for key, value := range v {
				if key == "name" || key == "id" {
					if s, ok := value.(string); ok && s != "" {
						names[s] = true
					}
				}
				walk(value)
			}
		case []interface{}:
			for _, item := range v {
				walk(item)
			}
		}
	}
	walk(ui)
	return names
}
