// Package adl defines the Agent Descriptor Language: the YAML/JSON schema
// that declares an agent's identity, business logic, tool bindings, LLM
// connectors and workflow graphs. Documents are parsed into typed records,
// validated for shape and cross-references, and published read-only through
// the loader registry.
package adl

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusBeta     Status = "beta"
	StatusDisabled Status = "disabled"
	StatusArchived Status = "archived"
)

var validStatuses = map[Status]bool{
	StatusDraft:    true,
	StatusActive:   true,
	StatusBeta:     true,
	StatusDisabled: true,
	StatusArchived: true,
}

// Trigger identifies what kind of request starts a workflow.
type Trigger string

const (
	TriggerUserMessage Trigger = "user_message"
	TriggerFormSubmit  Trigger = "form_submit"
	TriggerFileUpload  Trigger = "file_upload"
	TriggerButtonClick Trigger = "button_click"
	TriggerSchedule    Trigger = "schedule"
	TriggerWebhook     Trigger = "webhook"
	TriggerOnLoad      Trigger = "on_load"
)

var validTriggers = map[Trigger]bool{
	TriggerUserMessage: true,
	TriggerFormSubmit:  true,
	TriggerFileUpload:  true,
	TriggerButtonClick: true,
	TriggerSchedule:    true,
	TriggerWebhook:     true,
	TriggerOnLoad:      true,
}

// StepType discriminates the step variants of a workflow graph.
type StepType string

const (
	StepLLMCall       StepType = "llm_call"
	StepToolCall      StepType = "tool_call"
	StepCondition     StepType = "condition"
	StepLoop          StepType = "loop"
	StepParallel      StepType = "parallel"
	StepUserInput     StepType = "user_input"
	StepDataTransform StepType = "data_transform"
	StepSetVariable   StepType = "set_variable"
	StepValidation    StepType = "validation"
	StepHTTPRequest   StepType = "http_request"
)

var validStepTypes = map[StepType]bool{
	StepLLMCall:       true,
	StepToolCall:      true,
	StepCondition:     true,
	StepLoop:          true,
	StepParallel:      true,
	StepUserInput:     true,
	StepDataTransform: true,
	StepSetVariable:   true,
	StepValidation:    true,
	StepHTTPRequest:   true,
}

// ErrorPolicy controls what happens when a step or tool call fails.
type ErrorPolicy string

const (
	OnErrorStop     ErrorPolicy = "stop"
	OnErrorContinue ErrorPolicy = "continue"
	OnErrorRetry    ErrorPolicy = "retry"
	OnErrorFallback ErrorPolicy = "fallback"
)

var validErrorPolicies = map[ErrorPolicy]bool{
	OnErrorStop:     true,
	OnErrorContinue: true,
	OnErrorRetry:    true,
	OnErrorFallback: true,
}

// ParamSource tells the tool manager where a parameter value comes from.
type ParamSource string

const (
	SourceInput          ParamSource = "input"
	SourceConstant       ParamSource = "constant"
	SourceVariable       ParamSource = "variable"
	SourcePreviousOutput ParamSource = "previous_output"
	SourceContext        ParamSource = "context"
)

var validParamSources = map[ParamSource]bool{
	SourceInput:          true,
	SourceConstant:       true,
	SourceVariable:       true,
	SourcePreviousOutput: true,
	SourceContext:        true,
}

// Metadata carries document bookkeeping, opaque to execution.
type Metadata struct {
	ADLVersion string   `yaml:"adl_version" json:"adl_version"`
	SchemaURL  string   `yaml:"schema_url,omitempty" json:"schema_url,omitempty"`
	CreatedAt  string   `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt  string   `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
	CreatedBy  string   `yaml:"created_by,omitempty" json:"created_by,omitempty"`
	Version    string   `yaml:"version,omitempty" json:"version,omitempty"`
	Tags       []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Changelog  []string `yaml:"changelog,omitempty" json:"changelog,omitempty"`
}

// Identity names the agent.
type Identity struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Slug            string `yaml:"slug,omitempty" json:"slug,omitempty"`
	Description     string `yaml:"description" json:"description"`
	LongDescription string `yaml:"long_description,omitempty" json:"long_description,omitempty"`
	Icon            string `yaml:"icon,omitempty" json:"icon,omitempty"`
	Category        string `yaml:"category,omitempty" json:"category,omitempty"`
	Status          Status `yaml:"status" json:"status"`
}

// PersonalityTrait tunes the agent persona. Intensity is clamped to [0,2]
// at validation time.
type PersonalityTrait struct {
	Name      string  `yaml:"name" json:"name"`
	Intensity float64 `yaml:"intensity" json:"intensity"`
}

// BusinessLogic holds the prompting and LLM defaults for the agent.
type BusinessLogic struct {
	SystemPrompt          string             `yaml:"system_prompt" json:"system_prompt"`
	UserPromptTemplate    string             `yaml:"user_prompt_template,omitempty" json:"user_prompt_template,omitempty"`
	PersonalityTraits     []PersonalityTrait `yaml:"personality_traits,omitempty" json:"personality_traits,omitempty"`
	Tone                  string             `yaml:"tone,omitempty" json:"tone,omitempty"`
	Language              string             `yaml:"language,omitempty" json:"language,omitempty"`
	LLMProvider           string             `yaml:"llm_provider" json:"llm_provider"`
	LLMModel              string             `yaml:"llm_model,omitempty" json:"llm_model,omitempty"`
	Temperature           float64            `yaml:"temperature" json:"temperature"`
	MaxTokens             int                `yaml:"max_tokens" json:"max_tokens"`
	TopP                  *float64           `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	TopK                  *int               `yaml:"top_k,omitempty" json:"top_k,omitempty"`
	ContextWindowMessages int                `yaml:"context_window_messages" json:"context_window_messages"`
	IncludeSystemContext  bool               `yaml:"include_system_context" json:"include_system_context"`
	ResponseFormat        string             `yaml:"response_format,omitempty" json:"response_format,omitempty"`
	IncludeSources        bool               `yaml:"include_sources" json:"include_sources"`
	IncludeConfidence     bool               `yaml:"include_confidence" json:"include_confidence"`
	StreamingEnabled      bool               `yaml:"streaming_enabled" json:"streaming_enabled"`
	Moderation            bool               `yaml:"moderation" json:"moderation"`
	Classification        bool               `yaml:"classification" json:"classification"`
	TaskPrompts           map[string]string  `yaml:"task_prompts,omitempty" json:"task_prompts,omitempty"`
	Instructions          []string           `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	Constraints           []string           `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// ParameterMapping binds one tool parameter to its value source.
type ParameterMapping struct {
	Name           string      `yaml:"name" json:"name"`
	Source         ParamSource `yaml:"source" json:"source"`
	Value          interface{} `yaml:"value,omitempty" json:"value,omitempty"`
	InputComponent string      `yaml:"input_component,omitempty" json:"input_component,omitempty"`
	Transform      string      `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// ToolConfig binds a tool from the tool registry into the agent, with its
// parameter mappings and error policy.
type ToolConfig struct {
	ID             string             `yaml:"id" json:"id"`
	ToolID         string             `yaml:"tool_id" json:"tool_id"`
	Enabled        bool               `yaml:"enabled" json:"enabled"`
	Parameters     []ParameterMapping `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	OutputVariable string             `yaml:"output_variable,omitempty" json:"output_variable,omitempty"`
	OnError        ErrorPolicy        `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	RetryCount     int                `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
	FallbackValue  interface{}        `yaml:"fallback_value,omitempty" json:"fallback_value,omitempty"`
	TimeoutMs      int                `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// ToolsSection groups the agent's tool bindings.
type ToolsSection struct {
	Tools                []ToolConfig `yaml:"tools,omitempty" json:"tools,omitempty"`
	DefaultErrorHandling ErrorPolicy  `yaml:"default_error_handling,omitempty" json:"default_error_handling,omitempty"`
	ParallelExecution    bool         `yaml:"parallel_execution,omitempty" json:"parallel_execution,omitempty"`
	MaxParallelTools     int          `yaml:"max_parallel_tools,omitempty" json:"max_parallel_tools,omitempty"`
}

// ConnectorConfig names an LLM provider/model binding with call defaults.
type ConnectorConfig struct {
	ID          string   `yaml:"id" json:"id"`
	Provider    string   `yaml:"provider" json:"provider"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// ConnectorsSection groups the agent's LLM connectors.
type ConnectorsSection struct {
	DefaultConnector string            `yaml:"default_connector,omitempty" json:"default_connector,omitempty"`
	Connectors       []ConnectorConfig `yaml:"connectors,omitempty" json:"connectors,omitempty"`
	EnableFallback   bool              `yaml:"enable_fallback,omitempty" json:"enable_fallback,omitempty"`
	FallbackOrder    []string          `yaml:"fallback_order,omitempty" json:"fallback_order,omitempty"`
}

// Condition is a single comparison, optionally extended with AND/OR lists.
type Condition struct {
	Variable string      `yaml:"variable" json:"variable"`
	Operator string      `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value,omitempty" json:"value,omitempty"`
	And      []Condition `yaml:"and_conditions,omitempty" json:"and_conditions,omitempty"`
	Or       []Condition `yaml:"or_conditions,omitempty" json:"or_conditions,omitempty"`
}

// StepSpec is the variant payload of a Step. Exactly one concrete spec type
// exists per StepType; the executor switches exhaustively over them.
type StepSpec interface {
	stepSpec()
}

// LLMCallSpec renders a prompt and sends it to the LLM manager.
type LLMCallSpec struct {
	PromptTemplate       string   `yaml:"prompt_template" json:"prompt_template"`
	SystemPromptOverride string   `yaml:"system_prompt_override,omitempty" json:"system_prompt_override,omitempty"`
	ConnectorID          string   `yaml:"connector_id,omitempty" json:"connector_id,omitempty"`
	Temperature          *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens            *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// ToolCallSpec invokes a ToolConfig of the same agent.
type ToolCallSpec struct {
	ToolConfigID string `yaml:"tool_config_id" json:"tool_config_id"`
}

// ConditionSpec evaluates a condition and branches on the result.
type ConditionSpec struct {
	Condition Condition `yaml:"condition" json:"condition"`
	OnTrue    string    `yaml:"on_true,omitempty" json:"on_true,omitempty"`
	OnFalse   string    `yaml:"on_false,omitempty" json:"on_false,omitempty"`
}

// LoopSpec iterates a body over a sequence variable.
type LoopSpec struct {
	LoopVariable  string `yaml:"loop_variable" json:"loop_variable"`
	LoopItemName  string `yaml:"loop_item_name,omitempty" json:"loop_item_name,omitempty"`
	LoopIndexName string `yaml:"loop_index_name,omitempty" json:"loop_index_name,omitempty"`
	LoopBody      []Step `yaml:"loop_body,omitempty" json:"loop_body,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// ParallelSpec fans child steps out as concurrent tasks.
type ParallelSpec struct {
	ParallelSteps []Step `yaml:"parallel_steps,omitempty" json:"parallel_steps,omitempty"`
	WaitForAll    bool   `yaml:"wait_for_all" json:"wait_for_all"`
}

// UserInputSpec surfaces UI component values already present in variables.
type UserInputSpec struct {
	InputComponents []string `yaml:"input_components,omitempty" json:"input_components,omitempty"`
	InputTimeoutMs  int      `yaml:"input_timeout_ms,omitempty" json:"input_timeout_ms,omitempty"`
}

// SetVariableSpec binds a (possibly templated) value into variables.
type SetVariableSpec struct {
	VariableName  string      `yaml:"variable_name" json:"variable_name"`
	VariableValue interface{} `yaml:"variable_value,omitempty" json:"variable_value,omitempty"`
}

// DataTransformSpec renders a transform expression. The rendered string is
// the step output; no expression evaluation happens in v1.
type DataTransformSpec struct {
	TransformExpression string `yaml:"transform_expression" json:"transform_expression"`
}

// ValidationSpec is reserved; the step always succeeds with a true output.
type ValidationSpec struct{}

// HTTPRequestSpec is reserved for a future direct-HTTP step.
type HTTPRequestSpec struct{}

func (LLMCallSpec) stepSpec()       {}
func (ToolCallSpec) stepSpec()      {}
func (ConditionSpec) stepSpec()     {}
func (LoopSpec) stepSpec()          {}
func (ParallelSpec) stepSpec()      {}
func (UserInputSpec) stepSpec()     {}
func (SetVariableSpec) stepSpec()   {}
func (DataTransformSpec) stepSpec() {}
func (ValidationSpec) stepSpec()    {}
func (HTTPRequestSpec) stepSpec()   {}

// Step is one unit of work in a workflow graph. Common routing fields live
// here; the type-specific payload is in Spec.
type Step struct {
	ID             string      `yaml:"id" json:"id"`
	Name           string      `yaml:"name,omitempty" json:"name,omitempty"`
	Type           StepType    `yaml:"type" json:"type"`
	NextStep       string      `yaml:"next_step,omitempty" json:"next_step,omitempty"`
	OutputVariable string      `yaml:"output_variable,omitempty" json:"output_variable,omitempty"`
	OnError        ErrorPolicy `yaml:"on_error,omitempty" json:"on_error,omitempty"`

	Spec StepSpec `yaml:"-" json:"-"`
}

// Workflow is an ordered, branchable graph of steps driven by a trigger.
type Workflow struct {
	ID               string                 `yaml:"id" json:"id"`
	Name             string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Trigger          Trigger                `yaml:"trigger" json:"trigger"`
	TriggerConfig    map[string]interface{} `yaml:"trigger_config,omitempty" json:"trigger_config,omitempty"`
	Steps            []Step                 `yaml:"steps,omitempty" json:"steps,omitempty"`
	EntryStep        string                 `yaml:"entry_step,omitempty" json:"entry_step,omitempty"`
	InitialVariables map[string]interface{} `yaml:"initial_variables,omitempty" json:"initial_variables,omitempty"`
	TimeoutMs        int                    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// WorkflowsSection groups the agent's workflows.
type WorkflowsSection struct {
	Workflows       []Workflow `yaml:"workflows,omitempty" json:"workflows,omitempty"`
	DefaultWorkflow string     `yaml:"default_workflow,omitempty" json:"default_workflow,omitempty"`
}

// Deployment carries routing and scaling hints; the runtime only reads Route.
type Deployment struct {
	Route        string                 `yaml:"route,omitempty" json:"route,omitempty"`
	AutoRoute    bool                   `yaml:"auto_route,omitempty" json:"auto_route,omitempty"`
	Environment  string                 `yaml:"environment,omitempty" json:"environment,omitempty"`
	MinInstances int                    `yaml:"min_instances,omitempty" json:"min_instances,omitempty"`
	MaxInstances int                    `yaml:"max_instances,omitempty" json:"max_instances,omitempty"`
	FeatureFlags map[string]interface{} `yaml:"feature_flags,omitempty" json:"feature_flags,omitempty"`
}

// Document is a parsed ADL file. Raw holds the original (env-expanded)
// mapping so the full document, including opaque sections, round-trips
// byte-for-byte in meaning through save and the definition endpoint.
type Document struct {
	Metadata      Metadata               `yaml:"metadata" json:"metadata"`
	Identity      Identity               `yaml:"identity" json:"identity"`
	BusinessLogic BusinessLogic          `yaml:"business_logic" json:"business_logic"`
	Tools         ToolsSection           `yaml:"tools" json:"tools"`
	UI            map[string]interface{} `yaml:"ui,omitempty" json:"ui,omitempty"`
	Connectors    *ConnectorsSection     `yaml:"connectors,omitempty" json:"connectors,omitempty"`
	Workflows     WorkflowsSection       `yaml:"workflows" json:"workflows"`
	Security      map[string]interface{} `yaml:"security,omitempty" json:"security,omitempty"`
	Deployment    Deployment             `yaml:"deployment" json:"deployment"`

	Raw map[string]interface{} `yaml:"-" json:"-"`
}

// Agent is an immutable, validated agent record published by the loader.
type Agent struct {
	Doc        *Document
	Slug       string
	SourceFile string
	LoadedAt   time.Time
}

func (a *Agent) ID() string     { return a.Doc.Identity.ID }
func (a *Agent) Name() string   { return a.Doc.Identity.Name }
func (a *Agent) Status() Status { return a.Doc.Identity.Status }

// ToolConfigByID resolves a ToolConfig within the agent.
func (a *Agent) ToolConfigByID(id string) (*ToolConfig, bool) {
	for i := range a.Doc.Tools.Tools {
		if a.Doc.Tools.Tools[i].ID == id {
			return &a.Doc.Tools.Tools[i], true
		}
	}
	return nil, false
}

// WorkflowByID resolves a workflow by id or name.
func (a *Agent) WorkflowByID(id string) (*Workflow, bool) {
	for i := range a.Doc.Workflows.Workflows {
		wf := &a.Doc.Workflows.Workflows[i]
		if wf.ID == id || wf.Name == id {
			return wf, true
		}
	}
	return nil, false
}

// ConnectorByID resolves a connector against the connectors section.
func (a *Agent) ConnectorByID(id string) (*ConnectorConfig, bool) {
	if a.Doc.Connectors == nil {
		return nil, false
	}
	for i := range a.Doc.Connectors.Connectors {
		if a.Doc.Connectors.Connectors[i].ID == id {
			return &a.Doc.Connectors.Connectors[i], true
		}
	}
	return nil, false
}

// WorkflowForTrigger selects the workflow matching the trigger, using
// trigger_config entries (such as {button: "submit_btn"}) to discriminate
// between workflows sharing a trigger type. The first match wins.
func (a *Agent) WorkflowForTrigger(trigger Trigger, triggerConfig map[string]interface{}) (*Workflow, bool) {
	var fallback *Workflow
	for i := range a.Doc.Workflows.Workflows {
		wf := &a.Doc.Workflows.Workflows[i]
		if wf.Trigger != trigger {
			continue
		}
		if matchTriggerConfig(wf.TriggerConfig, triggerConfig) {
			return wf, true
		}
		if fallback == nil {
			fallback = wf
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

// DefaultWorkflow returns the declared default, or the first workflow.
func (a *Agent) DefaultWorkflow() (*Workflow, bool) {
	if a.Doc.Workflows.DefaultWorkflow != "" {
		if wf, ok := a.WorkflowByID(a.Doc.Workflows.DefaultWorkflow); ok {
			return wf, true
		}
	}
	if len(a.Doc.Workflows.Workflows) > 0 {
		return &a.Doc.Workflows.Workflows[0], true
	}
	return nil, false
}

func matchTriggerConfig(declared, requested map[string]interface{}) bool {
	if len(declared) == 0 {
		return len(requested) == 0
	}
	for key, want := range declared {
		got, ok := requested[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// StepByRef resolves a step reference (id or name) within a workflow.
func (w *Workflow) StepByRef(ref string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == ref || w.Steps[i].Name == ref {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// EntryStepRef returns the configured entry step or the first step.
func (w *Workflow) EntryStepRef() (*Step, bool) {
	if w.EntryStep != "" {
		return w.StepByRef(w.EntryStep)
	}
	if len(w.Steps) > 0 {
		return &w.Steps[0], true
	}
	return nil, false
}
