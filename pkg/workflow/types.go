// Package workflow drives an agent's workflow graph from its entry step to a
// terminal state, producing a closed ExecutionContext. Step failures surface
// as values through each step's on_error policy; the executor itself never
// panics the process.
package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wsaadi/nova/pkg/adl"
	"github.com/wsaadi/nova/pkg/llms"
)

// Status is the terminal or in-flight state of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepResult records one visited step.
type StepResult struct {
	StepID      string       `json:"step_id"`
	StepName    string       `json:"step_name,omitempty"`
	Type        adl.StepType `json:"type"`
	ToolID      string       `json:"tool_id,omitempty"`
	Status      StepStatus   `json:"status"`
	Output      interface{}  `json:"output,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	DurationMs  int64        `json:"duration_ms"`
	Usage       *llms.Usage  `json:"usage,omitempty"`
}

// ExecutionContext is the per-run state: variables, step history and
// cumulative token usage. Each context is owned by exactly one in-flight
// execution; the mutex only serialises appends from parallel sub-steps.
type ExecutionContext struct {
	ExecutionID   string                 `json:"execution_id"`
	WorkflowID    string                 `json:"workflow_id"`
	AgentID       string                 `json:"agent_id"`
	Variables     map[string]interface{} `json:"variables"`
	StepResults   []StepResult           `json:"step_results"`
	CurrentStepID string                 `json:"current_step_id,omitempty"`
	Status        Status                 `json:"status"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at,omitempty"`
	Usage         llms.Usage             `json:"usage"`
	Error         string                 `json:"error,omitempty"`

	mu sync.Mutex
}

// NewExecutionContext opens a running context for one workflow run.
func NewExecutionContext(agentID, workflowID string) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflowID,
		AgentID:     agentID,
		Variables:   make(map[string]interface{}),
		Status:      StatusRunning,
		StartedAt:   time.Now(),
	}
}

// recordResult appends a step result and folds its usage into the total.
func (ec *ExecutionContext) recordResult(result StepResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.StepResults = append(ec.StepResults, result)
	if result.Usage != nil && result.Status == StepCompleted {
		ec.Usage.Add(*result.Usage)
	}
}

// snapshotVariables returns a shallow copy for parallel children.
func (ec *ExecutionContext) snapshotVariables() map[string]interface{} {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	snapshot := make(map[string]interface{}, len(ec.Variables))
	for k, v := range ec.Variables {
		snapshot[k] = v
	}
	return snapshot
}

// close marks the context terminal.
func (ec *ExecutionContext) close(status Status, errMsg string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.Status = status
	ec.Error = errMsg
	ec.CompletedAt = time.Now()
}

// FinalOutput returns the output of the last completed step, the
// conventional "result" of a linear workflow.
func (ec *ExecutionContext) FinalOutput() interface{} {
	for i := len(ec.StepResults) - 1; i >= 0; i-- {
		if ec.StepResults[i].Status == StepCompleted && ec.StepResults[i].Output != nil {
			return ec.StepResults[i].Output
		}
	}
	return nil
}

// Event is one progress notification surfaced to streaming callers.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

const (
	EventStart    = "start"
	EventToken    = "token"
	EventStep     = "step"
	EventTool     = "tool"
	EventComplete = "complete"
	EventError    = "error"
)
