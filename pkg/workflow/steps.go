package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wsaadi/nova/pkg/adl"
	"github.com/wsaadi/nova/pkg/llms"
)

// executeStep dispatches on the step's spec type. The switch is exhaustive
// over every StepSpec variant; an unknown spec is a decoding bug and fails
// the step.
func (e *Executor) executeStep(ctx context.Context, ws *walkState, step *adl.Step) (interface{}, *llms.Usage, error) {
	switch spec := step.Spec.(type) {
	case adl.LLMCallSpec:
		return e.executeLLMCall(ctx, ws, step, spec)
	case adl.ToolCallSpec:
		output, err := e.executeToolCall(ctx, ws, step, spec)
		return output, nil, err
	case adl.ConditionSpec:
		return EvaluateCondition(&spec.Condition, ws.ec.Variables), nil, nil
	case adl.LoopSpec:
		return e.executeLoop(ctx, ws, spec)
	case adl.ParallelSpec:
		return e.executeParallel(ctx, ws, spec)
	case adl.UserInputSpec:
		return e.executeUserInput(ws, spec), nil, nil
	case adl.SetVariableSpec:
		return e.executeSetVariable(ws, spec), nil, nil
	case adl.DataTransformSpec:
		return Render(spec.TransformExpression, ws.ec.Variables), nil, nil
	case adl.ValidationSpec:
		return true, nil, nil
	case adl.HTTPRequestSpec:
		return nil, nil, fmt.Errorf("http_request steps are not supported yet")
	default:
		return nil, nil, fmt.Errorf("unknown step spec %T for step %s", step.Spec, step.ID)
	}
}

// llmParams are the resolved call parameters after connector and per-step
// overrides are applied over agent defaults.
type llmParams struct {
	provider    string
	model       string
	temperature float64
	maxTokens   int
}

func (e *Executor) resolveLLMParams(agent *adl.Agent, spec adl.LLMCallSpec) (llmParams, error) {
	logic := agent.Doc.BusinessLogic
	params := llmParams{
		provider:    logic.LLMProvider,
		model:       logic.LLMModel,
		temperature: logic.Temperature,
		maxTokens:   logic.MaxTokens,
	}

	if spec.ConnectorID != "" {
		connector, ok := agent.ConnectorByID(spec.ConnectorID)
		if !ok {
			return params, fmt.Errorf("unknown connector: %s", spec.ConnectorID)
		}
		params.provider = connector.Provider
		if connector.Model != "" {
			params.model = connector.Model
		}
		if connector.Temperature != nil {
			params.temperature = *connector.Temperature
		}
		if connector.MaxTokens != nil {
			params.maxTokens = *connector.MaxTokens
		}
	}

	if spec.Temperature != nil {
		params.temperature = *spec.Temperature
	}
	if spec.MaxTokens != nil {
		params.maxTokens = *spec.MaxTokens
	}

	return params, nil
}

func (e *Executor) executeLLMCall(ctx context.Context, ws *walkState, step *adl.Step, spec adl.LLMCallSpec) (interface{}, *llms.Usage, error) {
	params, err := e.resolveLLMParams(ws.req.Agent, spec)
	if err != nil {
		return nil, nil, err
	}

	systemPrompt := ws.req.Agent.Doc.BusinessLogic.SystemPrompt
	if spec.SystemPromptOverride != "" {
		systemPrompt = spec.SystemPromptOverride
	}
	systemPrompt = Render(systemPrompt, ws.ec.Variables)

	prompt := Render(spec.PromptTemplate, ws.ec.Variables)

	var messages []llms.Message
	if history, ok := ws.ec.Variables["conversation_history"].([]interface{}); ok {
		for _, entry := range history {
			msg, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			role, _ := msg["role"].(string)
			content, _ := msg["content"].(string)
			if role != "" && content != "" {
				messages = append(messages, llms.Message{Role: role, Content: content})
			}
		}
	}
	messages = append(messages, llms.Message{Role: "user", Content: prompt})

	req := llms.ChatRequest{
		Messages:     messages,
		Provider:     params.provider,
		Model:        params.model,
		SystemPrompt: systemPrompt,
		Temperature:  params.temperature,
		MaxTokens:    params.maxTokens,
		TopP:         ws.req.Agent.Doc.BusinessLogic.TopP,
	}

	if ws.req.Stream && ws.req.OnEvent != nil {
		return e.streamLLMCall(ctx, ws, step, req)
	}

	resp := e.llms.Chat(ctx, req)
	if !resp.Success {
		return nil, nil, fmt.Errorf("llm call failed: %s", resp.Error)
	}

	usage := resp.Usage
	return resp.Content, &usage, nil
}

// streamLLMCall consumes the token stream, forwarding each token as an event
// and returning the concatenated content. Providers do not report usage on
// the stream path.
func (e *Executor) streamLLMCall(ctx context.Context, ws *walkState, step *adl.Step, req llms.ChatRequest) (interface{}, *llms.Usage, error) {
	chunks, err := e.llms.ChatStream(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("llm stream failed: %w", err)
	}

	var content strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, nil, fmt.Errorf("llm stream failed: %w", chunk.Err)
		}
		content.WriteString(chunk.Text)
		ws.emit(EventToken, map[string]interface{}{
			"step_id": step.ID,
			"token":   chunk.Text,
		})
	}

	return content.String(), nil, nil
}

func (e *Executor) executeToolCall(ctx context.Context, ws *walkState, step *adl.Step, spec adl.ToolCallSpec) (interface{}, error) {
	toolConfig, ok := ws.req.Agent.ToolConfigByID(spec.ToolConfigID)
	if !ok {
		return nil, fmt.Errorf("unknown tool config: %s", spec.ToolConfigID)
	}

	parameters := ResolveParameters(toolConfig.Parameters, ws.ec.Variables, ws.req.Inputs, ws.previousOutputs)

	ws.currentToolID = toolConfig.ToolID
	timeout := time.Duration(toolConfig.TimeoutMs) * time.Millisecond

	ws.emit(EventTool, map[string]interface{}{
		"step_id": step.ID,
		"tool_id": toolConfig.ToolID,
	})

	result := e.tools.Execute(ctx, toolConfig.ToolID, parameters, ws.req.Files, timeout)

	if !result.Success && toolConfig.OnError == adl.OnErrorRetry {
		for attempt := 0; attempt < toolConfig.RetryCount && !result.Success; attempt++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
			result = e.tools.Execute(ctx, toolConfig.ToolID, parameters, ws.req.Files, timeout)
		}
	}

	if result.Success {
		return result.Output, nil
	}

	switch toolConfig.OnError {
	case adl.OnErrorFallback:
		return toolConfig.FallbackValue, nil
	case adl.OnErrorContinue:
		return nil, nil
	default:
		return nil, fmt.Errorf("tool %s failed: %s", toolConfig.ToolID, result.Error)
	}
}

func (e *Executor) executeLoop(ctx context.Context, ws *walkState, spec adl.LoopSpec) (interface{}, *llms.Usage, error) {
	items, ok := ws.ec.Variables[spec.LoopVariable].([]interface{})
	if !ok {
		return []interface{}{}, nil, nil
	}

	itemName := spec.LoopItemName
	if itemName == "" {
		itemName = "item"
	}
	indexName := spec.LoopIndexName
	if indexName == "" {
		indexName = "index"
	}

	limit := spec.MaxIterations
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	// Body step usage folds into the context through recordResult; the loop
	// step itself reports none to avoid double counting.
	collected := []interface{}{}

	for index := 0; index < limit; index++ {
		ws.ec.Variables[itemName] = items[index]
		ws.ec.Variables[indexName] = index

		for i := range spec.LoopBody {
			bodyStep := &spec.LoopBody[i]
			result := e.runStep(ctx, ws, bodyStep)
			ws.ec.recordResult(result)

			if result.Status == StepCompleted {
				if bodyStep.OutputVariable != "" {
					ws.ec.Variables[bodyStep.OutputVariable] = result.Output
					ws.previousOutputs[bodyStep.OutputVariable] = result.Output
				}
				if result.Output != nil {
					collected = append(collected, result.Output)
				}
				continue
			}

			if bodyStep.OnError == adl.OnErrorStop {
				return collected, nil, fmt.Errorf("loop body step %s failed: %s", bodyStep.ID, result.Error)
			}
		}
	}

	return collected, nil, nil
}

func (e *Executor) executeParallel(ctx context.Context, ws *walkState, spec adl.ParallelSpec) (interface{}, *llms.Usage, error) {
	if len(spec.ParallelSteps) == 0 {
		return map[string]interface{}{}, nil, nil
	}

	// Each child gets its own copy of the launch-time snapshot so concurrent
	// step writes never share a map. Children write into their slot of the
	// results slice; the parent records them into the context only after the
	// group has joined, in declaration order, so step_results stay issue-ordered
	// and no goroutine touches the context or emits events past this return.
	snapshot := ws.ec.snapshotVariables()

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]StepResult, len(spec.ParallelSteps))
	done := make(chan int, len(spec.ParallelSteps))

	group, groupCtx := errgroup.WithContext(childCtx)
	for i := range spec.ParallelSteps {
		i := i
		childStep := &spec.ParallelSteps[i]
		group.Go(func() error {
			childVars := make(map[string]interface{}, len(snapshot))
			for k, v := range snapshot {
				childVars[k] = v
			}
			childState := &walkState{
				req: ws.req,
				ec: &ExecutionContext{
					ExecutionID: ws.ec.ExecutionID,
					WorkflowID:  ws.ec.WorkflowID,
					AgentID:     ws.ec.AgentID,
					Variables:   childVars,
					Status:      StatusRunning,
					StartedAt:   time.Now(),
				},
				previousOutputs: map[string]interface{}{},
			}
			results[i] = e.runStep(groupCtx, childState, childStep)
			done <- i
			return nil
		})
	}

	winnerIndex := -1
	if !spec.WaitForAll {
		// First completion wins; the cancel tears the rest down, so the join
		// below is bounded.
		winnerIndex = <-done
		cancel()
	}

	group.Wait() //nolint:errcheck // children never return errors

	for i := range results {
		ws.ec.recordResult(results[i])
	}

	outputs := map[string]interface{}{}

	if spec.WaitForAll {
		for i := range results {
			if results[i].Status == StepFailed {
				return outputs, nil, fmt.Errorf("parallel step %s failed: %s", spec.ParallelSteps[i].ID, results[i].Error)
			}
			outputs[spec.ParallelSteps[i].ID] = results[i].Output
		}
		return outputs, nil, nil
	}

	winner := results[winnerIndex]
	if winner.Status == StepFailed {
		return outputs, nil, fmt.Errorf("parallel step %s failed: %s", spec.ParallelSteps[winnerIndex].ID, winner.Error)
	}
	outputs[spec.ParallelSteps[winnerIndex].ID] = winner.Output
	return outputs, nil, nil
}

func (e *Executor) executeUserInput(ws *walkState, spec adl.UserInputSpec) interface{} {
	values := map[string]interface{}{}
	for _, name := range spec.InputComponents {
		values[name] = ws.ec.Variables[name]
	}
	return values
}

func (e *Executor) executeSetVariable(ws *walkState, spec adl.SetVariableSpec) interface{} {
	value := spec.VariableValue
	if s, ok := value.(string); ok {
		value = Render(s, ws.ec.Variables)
	}
	ws.ec.Variables[spec.VariableName] = value
	return value
}
