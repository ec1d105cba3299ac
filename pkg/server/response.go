package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wsaadi/nova/pkg/llms"
	"github.com/wsaadi/nova/pkg/safety"
)

// ExecuteResponse is the envelope returned by every execution endpoint.
// Workflow failures and safety blocks stay HTTP 200 with success=false;
// only unknown agents and malformed requests use error status codes.
type ExecuteResponse struct {
	Success          bool                   `json:"success"`
	AgentID          string                 `json:"agent_id,omitempty"`
	AgentName        string                 `json:"agent_name,omitempty"`
	ExecutionID      string                 `json:"execution_id,omitempty"`
	Status           string                 `json:"status,omitempty"`
	Output           interface{}            `json:"output,omitempty"`
	Outputs          map[string]interface{} `json:"outputs"`
	Files            []interface{}          `json:"files"`
	Message          string                 `json:"message,omitempty"`
	SessionID        string                 `json:"session_id,omitempty"`
	WorkflowExecuted string                 `json:"workflow_executed,omitempty"`
	StepsExecuted    int                    `json:"steps_executed"`
	DurationMs       int64                  `json:"duration_ms"`
	Usage            *llms.Usage            `json:"usage,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Warnings         []string               `json:"warnings,omitempty"`

	BlockedReason string                   `json:"blocked_reason,omitempty"`
	Moderation    *safety.ModerationResult `json:"moderation,omitempty"`
	Guardrails    *safety.GuardrailsResult `json:"guardrails,omitempty"`
}

func newExecuteResponse() *ExecuteResponse {
	return &ExecuteResponse{
		Outputs: map[string]interface{}{},
		Files:   []interface{}{},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
