package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wsaadi/nova/pkg/adl"
	"github.com/wsaadi/nova/pkg/llms"
	"github.com/wsaadi/nova/pkg/session"
	"github.com/wsaadi/nova/pkg/tools"
)

// maxStepsPerExecution bounds the graph walk so a cyclic next_step chain
// cannot spin forever.
const maxStepsPerExecution = 1000

const retryBackoff = 500 * time.Millisecond

// stepRetryAttempts is the extra-attempt budget for on_error=retry on
// non-tool steps, which have no per-config retry_count of their own.
const stepRetryAttempts = 2

// Executor drives workflow graphs. It is stateless across runs; all per-run
// state lives in the ExecutionContext.
type Executor struct {
	llms     *llms.Manager
	tools    *tools.Manager
	sessions *session.Manager
}

// Request is one workflow run.
type Request struct {
	Agent    *adl.Agent
	Workflow *adl.Workflow
	Inputs   map[string]interface{}
	Files    []tools.File
	Session  *session.Session

	// Stream asks llm_call steps to use the streaming endpoint and emit
	// token events through OnEvent.
	Stream  bool
	OnEvent func(Event)
}

func NewExecutor(llmManager *llms.Manager, toolManager *tools.Manager, sessions *session.Manager) *Executor {
	return &Executor{
		llms:     llmManager,
		tools:    toolManager,
		sessions: sessions,
	}
}

// walkState is the mutable companion of one graph walk.
type walkState struct {
	req Request
	ec  *ExecutionContext

	// previousOutputs maps output_variable names to step outputs, the
	// namespace read by previous_output parameter mappings.
	previousOutputs map[string]interface{}

	// currentToolID is set by tool_call execution so runStep can stamp the
	// result. Each walkState serves one goroutine; parallel children carry
	// their own.
	currentToolID string
}

func (ws *walkState) emit(eventType string, data map[string]interface{}) {
	if ws.req.OnEvent != nil {
		ws.req.OnEvent(Event{Type: eventType, Data: data})
	}
}

// Execute runs the workflow to a terminal state. It never panics across the
// boundary; internal failures close the context with status failed.
func (e *Executor) Execute(ctx context.Context, req Request) *ExecutionContext {
	ec := NewExecutionContext(req.Agent.ID(), req.Workflow.ID)

	if req.Workflow.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Workflow.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	e.initVariables(ec, req)

	ws := &walkState{
		req:             req,
		ec:              ec,
		previousOutputs: map[string]interface{}{},
	}

	ws.emit(EventStart, map[string]interface{}{
		"execution_id": ec.ExecutionID,
		"workflow_id":  ec.WorkflowID,
		"agent_id":     ec.AgentID,
	})

	defer func() {
		if r := recover(); r != nil {
			slog.Error("workflow execution panicked", "workflow", req.Workflow.ID, "panic", r)
			ec.close(StatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	e.walk(ctx, ws)

	if ec.Status == StatusCompleted && req.Session != nil {
		if output := ec.FinalOutput(); output != nil {
			if err := e.sessions.AddMessage(req.Session.SessionID, session.RoleAssistant, Stringify(output)); err != nil {
				slog.Warn("failed to append assistant message", "session", req.Session.SessionID, "error", err)
			}
		}
	}

	switch ec.Status {
	case StatusCompleted:
		ws.emit(EventComplete, map[string]interface{}{
			"execution_id": ec.ExecutionID,
			"output":       ec.FinalOutput(),
			"usage":        ec.Usage,
		})
	case StatusFailed, StatusCancelled:
		ws.emit(EventError, map[string]interface{}{
			"execution_id": ec.ExecutionID,
			"error":        ec.Error,
		})
	}

	return ec
}

func (e *Executor) initVariables(ec *ExecutionContext, req Request) {
	for k, v := range req.Workflow.InitialVariables {
		ec.Variables[k] = v
	}
	for k, v := range req.Inputs {
		ec.Variables[k] = v
	}
	ec.Variables["agent_name"] = req.Agent.Name()
	ec.Variables["system_prompt"] = req.Agent.Doc.BusinessLogic.SystemPrompt

	if req.Session != nil {
		ec.Variables["session_id"] = req.Session.SessionID

		window := req.Agent.Doc.BusinessLogic.ContextWindowMessages
		if window <= 0 {
			window = 10
		}
		messages, err := e.sessions.GetMessages(req.Session.SessionID, window)
		if err == nil && len(messages) > 0 {
			history := make([]interface{}, len(messages))
			for i, msg := range messages {
				history[i] = map[string]interface{}{
					"role":    string(msg.Role),
					"content": msg.Content,
				}
			}
			ec.Variables["conversation_history"] = history
		}
	}
}

func (e *Executor) walk(ctx context.Context, ws *walkState) {
	workflow := ws.req.Workflow
	if len(workflow.Steps) == 0 {
		ws.ec.close(StatusCompleted, "")
		return
	}

	current, ok := workflow.EntryStepRef()
	if !ok {
		current = &workflow.Steps[0]
	}

	visited := 0
	for current != nil {
		if err := ctx.Err(); err != nil {
			ws.ec.close(StatusCancelled, fmt.Sprintf("execution cancelled: %v", err))
			return
		}

		visited++
		if visited > maxStepsPerExecution {
			ws.ec.close(StatusFailed, fmt.Sprintf("step budget exceeded (%d steps); workflow likely cyclic", maxStepsPerExecution))
			return
		}

		ws.ec.CurrentStepID = current.ID
		result := e.runStep(ctx, ws, current)
		ws.ec.recordResult(result)

		ws.emit(EventStep, map[string]interface{}{
			"step_id":     result.StepID,
			"step_name":   result.StepName,
			"type":        string(result.Type),
			"status":      string(result.Status),
			"duration_ms": result.DurationMs,
		})

		if result.Status == StepCompleted && current.OutputVariable != "" {
			ws.ec.Variables[current.OutputVariable] = result.Output
			ws.previousOutputs[current.OutputVariable] = result.Output
		}

		if result.Status == StepFailed && current.OnError == adl.OnErrorStop {
			ws.ec.close(StatusFailed, fmt.Sprintf("step %s failed: %s", current.ID, result.Error))
			return
		}

		next := e.nextStepRef(current, result)
		if next == "" {
			break
		}
		nextStep, ok := workflow.StepByRef(next)
		if !ok {
			ws.ec.close(StatusFailed, fmt.Sprintf("step %s routes to unknown step %q", current.ID, next))
			return
		}
		current = nextStep
	}

	ws.ec.close(StatusCompleted, "")
}

// nextStepRef picks the follow-up step: condition steps branch on their
// boolean output, everything else follows next_step.
func (e *Executor) nextStepRef(step *adl.Step, result StepResult) string {
	if spec, ok := step.Spec.(adl.ConditionSpec); ok && result.Status == StepCompleted {
		if outcome, ok := result.Output.(bool); ok {
			if outcome {
				return spec.OnTrue
			}
			return spec.OnFalse
		}
	}
	return step.NextStep
}

// runStep executes one step, honouring step-level retry. Failures surface as
// a failed StepResult, never an error return.
func (e *Executor) runStep(ctx context.Context, ws *walkState, step *adl.Step) StepResult {
	start := time.Now()
	ws.currentToolID = ""

	output, usage, err := e.executeStep(ctx, ws, step)

	// Tool calls retry inside executeToolCall per their ToolConfig retry_count;
	// the generic step retry covers every other step type.
	if err != nil && step.OnError == adl.OnErrorRetry && step.Type != adl.StepToolCall {
		for attempt := 0; attempt < stepRetryAttempts && err != nil; attempt++ {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(retryBackoff):
				output, usage, err = e.executeStep(ctx, ws, step)
			}
		}
	}

	result := StepResult{
		StepID:      step.ID,
		StepName:    step.Name,
		Type:        step.Type,
		ToolID:      ws.currentToolID,
		StartedAt:   start,
		CompletedAt: time.Now(),
		Usage:       usage,
	}
	result.DurationMs = result.CompletedAt.Sub(start).Milliseconds()

	if err != nil {
		result.Status = StepFailed
		result.Error = err.Error()
		slog.Warn("step failed", "step", step.ID, "type", step.Type, "error", err)
	} else {
		result.Status = StepCompleted
		result.Output = output
	}

	return result
}
