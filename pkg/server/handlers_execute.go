package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wsaadi/nova/pkg/adl"
	"github.com/wsaadi/nova/pkg/llms"
	"github.com/wsaadi/nova/pkg/session"
	"github.com/wsaadi/nova/pkg/tools"
	"github.com/wsaadi/nova/pkg/workflow"
)

const maxUploadBytes = 32 << 20

// executeRequest is the body shared by the execution endpoints.
type executeRequest struct {
	Inputs        map[string]interface{} `json:"inputs,omitempty"`
	Message       string                 `json:"message,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	WorkflowID    string                 `json:"workflow_id,omitempty"`
	Trigger       string                 `json:"trigger,omitempty"`
	TriggerConfig map[string]interface{} `json:"trigger_config,omitempty"`
	Stream        bool                   `json:"stream,omitempty"`
}

func decodeExecuteRequest(r *http.Request) (*executeRequest, error) {
	req := &executeRequest{}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxUploadBytes))
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			return nil, err
		}
	}
	if req.Inputs == nil {
		req.Inputs = map[string]interface{}{}
	}
	return req, nil
}

// selectWorkflow picks the workflow for a request: explicit id, then trigger
// match, then the agent's default.
func selectWorkflow(agent *adl.Agent, req *executeRequest) (*adl.Workflow, error) {
	if req.WorkflowID != "" {
		wf, ok := agent.WorkflowByID(req.WorkflowID)
		if !ok {
			return nil, fmt.Errorf("unknown workflow: %s", req.WorkflowID)
		}
		return wf, nil
	}
	if req.Trigger != "" {
		if wf, ok := agent.WorkflowForTrigger(adl.Trigger(req.Trigger), req.TriggerConfig); ok {
			return wf, nil
		}
	}
	if req.Message != "" {
		if wf, ok := agent.WorkflowForTrigger(adl.TriggerUserMessage, nil); ok {
			return wf, nil
		}
	}
	wf, ok := agent.DefaultWorkflow()
	if !ok {
		return nil, fmt.Errorf("agent has no workflows")
	}
	return wf, nil
}

// gateContent is what the safety gate inspects: the chat message, or the
// string-valued inputs when there is none.
func gateContent(req *executeRequest) string {
	if req.Message != "" {
		return req.Message
	}
	var parts []string
	for _, value := range req.Inputs {
		if s, ok := value.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// runExecution is the shared execution path behind execute, stream, upload
// and chat. It applies the safety gate, binds the session, runs the workflow
// and shapes the response envelope.
func (s *Server) runExecution(ctx context.Context, agent *adl.Agent, req *executeRequest, files []tools.File, stream bool, onEvent func(workflow.Event)) *ExecuteResponse {
	resp := newExecuteResponse()
	resp.AgentID = agent.ID()
	resp.AgentName = agent.Name()

	wf, err := selectWorkflow(agent, req)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.WorkflowExecuted = wf.ID

	if content := gateContent(req); content != "" {
		decision := s.rt.Gate.Check(ctx, content, agent.ID(), req.UserID)
		resp.Moderation = decision.Moderation
		resp.Guardrails = decision.Guardrails
		if !decision.Approved {
			stage := "moderation"
			if decision.Guardrails != nil && !decision.Guardrails.Approved {
				stage = "guardrails"
			}
			s.rt.Metrics.SafetyBlocksTotal.WithLabelValues(stage).Inc()

			resp.Status = "blocked"
			resp.BlockedReason = decision.BlockedReason
			resp.Error = "blocked by safety gate"
			return resp
		}
	}

	var sess *session.Session
	if req.SessionID != "" || req.Message != "" {
		sess = s.rt.Sessions.GetOrCreate(req.SessionID, agent.ID(), agent.Name(), req.UserID)
		resp.SessionID = sess.SessionID
		if req.Message != "" {
			if err := s.rt.Sessions.AddMessage(sess.SessionID, session.RoleUser, req.Message); err != nil {
				resp.Warnings = append(resp.Warnings, "failed to record user message: "+err.Error())
			}
		}
	}
	s.rt.Metrics.ActiveSessions.Set(float64(s.rt.Sessions.Count()))

	if req.Message != "" {
		if _, exists := req.Inputs["message"]; !exists {
			req.Inputs["message"] = req.Message
		}
	}

	ec := s.rt.Executor.Execute(ctx, workflow.Request{
		Agent:    agent,
		Workflow: wf,
		Inputs:   req.Inputs,
		Files:    files,
		Session:  sess,
		Stream:   stream,
		OnEvent:  onEvent,
	})

	s.recordExecutionMetrics(agent, ec)

	resp.ExecutionID = ec.ExecutionID
	resp.Status = string(ec.Status)
	resp.Success = ec.Status == workflow.StatusCompleted
	resp.StepsExecuted = len(ec.StepResults)
	resp.DurationMs = ec.CompletedAt.Sub(ec.StartedAt).Milliseconds()
	resp.Error = ec.Error

	if ec.Usage != (llms.Usage{}) {
		usage := ec.Usage
		resp.Usage = &usage
	}

	resp.Output = ec.FinalOutput()
	for i := range wf.Steps {
		if name := wf.Steps[i].OutputVariable; name != "" {
			if value, ok := ec.Variables[name]; ok {
				resp.Outputs[name] = value
			}
		}
	}

	return resp
}

func (s *Server) recordExecutionMetrics(agent *adl.Agent, ec *workflow.ExecutionContext) {
	s.rt.Metrics.ExecutionsTotal.WithLabelValues(agent.ID(), string(ec.Status)).Inc()
	s.rt.Metrics.ExecutionDuration.WithLabelValues(agent.ID()).
		Observe(ec.CompletedAt.Sub(ec.StartedAt).Seconds())

	for _, step := range ec.StepResults {
		s.rt.Metrics.StepsTotal.WithLabelValues(string(step.Type), string(step.Status)).Inc()
		switch step.Type {
		case adl.StepToolCall:
			outcome := "success"
			if step.Status == workflow.StepFailed {
				outcome = "failure"
			}
			s.rt.Metrics.ToolCallsTotal.WithLabelValues(step.ToolID, outcome).Inc()
		case adl.StepLLMCall:
			outcome := "success"
			if step.Status == workflow.StepFailed {
				outcome = "failure"
			}
			provider := agent.Doc.BusinessLogic.LLMProvider
			s.rt.Metrics.LLMCallsTotal.WithLabelValues(provider, outcome).Inc()
			if step.Usage != nil {
				s.rt.Metrics.LLMTokensTotal.WithLabelValues(provider, "prompt").Add(float64(step.Usage.PromptTokens))
				s.rt.Metrics.LLMTokensTotal.WithLabelValues(provider, "completion").Add(float64(step.Usage.CompletionTokens))
			}
		}
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	req, err := decodeExecuteRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp := s.runExecution(r.Context(), agent, req, nil, false, nil)
	writeJSON(w, http.StatusOK, resp)
}

// handleExecuteStream runs the workflow while relaying executor events as
// Server-Sent Events. The final envelope rides on the complete event.
func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	req, err := decodeExecuteRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan workflow.Event, 64)
	done := make(chan *ExecuteResponse, 1)

	go func() {
		resp := s.runExecution(r.Context(), agent, req, nil, true, func(event workflow.Event) {
			select {
			case events <- event:
			case <-r.Context().Done():
			}
		})
		close(events)
		done <- resp
	}()

	for event := range events {
		writeSSE(w, flusher, event.Type, event.Data)
	}

	resp := <-done
	if resp.Status == "blocked" || (resp.ExecutionID == "" && resp.Error != "") {
		// Gate blocks and selection errors never reach the executor, so no
		// error event was emitted; surface one here.
		writeSSE(w, flusher, workflow.EventError, map[string]interface{}{
			"error":          resp.Error,
			"blocked_reason": resp.BlockedReason,
		})
	}
	writeSSE(w, flusher, workflow.EventComplete, map[string]interface{}{"result": resp})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// handleExecuteUpload accepts a multipart form: file parts become tool file
// handles, an "inputs" field carries a JSON object, every other field is a
// plain string input.
func (s *Server) handleExecuteUpload(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	req := &executeRequest{Inputs: map[string]interface{}{}}
	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case "inputs":
			var inputs map[string]interface{}
			if err := json.Unmarshal([]byte(value), &inputs); err == nil {
				for k, v := range inputs {
					req.Inputs[k] = v
				}
			}
		case "message":
			req.Message = value
		case "session_id":
			req.SessionID = value
		case "workflow_id":
			req.WorkflowID = value
		case "trigger":
			req.Trigger = value
		case "user_id":
			req.UserID = value
		default:
			req.Inputs[key] = value
		}
	}

	var files []tools.File
	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
				return
			}
			files = append(files, tools.File{
				FieldName: field,
				Filename:  header.Filename,
				Data:      data,
			})
			req.Inputs[field] = header.Filename
		}
	}
	if req.Trigger == "" && len(files) > 0 {
		req.Trigger = string(adl.TriggerFileUpload)
	}

	resp := s.runExecution(r.Context(), agent, req, files, false, nil)
	writeJSON(w, http.StatusOK, resp)
}

// handleChat is the conversational shorthand: message plus optional session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	var body struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id,omitempty"`
		UserID    string `json:"user_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	req := &executeRequest{
		Inputs:    map[string]interface{}{},
		Message:   body.Message,
		SessionID: body.SessionID,
		UserID:    body.UserID,
		Trigger:   string(adl.TriggerUserMessage),
	}

	started := time.Now()
	resp := s.runExecution(r.Context(), agent, req, nil, false, nil)
	if resp.DurationMs == 0 {
		resp.DurationMs = time.Since(started).Milliseconds()
	}
	if output, ok := resp.Output.(string); ok {
		resp.Message = output
	}
	writeJSON(w, http.StatusOK, resp)
}
