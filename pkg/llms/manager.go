package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wsaadi/nova/pkg/httpclient"
	"github.com/wsaadi/nova/pkg/registry"
)

// Manager multiplexes chat requests across provider endpoints. It is
// stateless apart from its endpoint registry and shares the runtime's
// pooled HTTP client.
type Manager struct {
	endpoints *registry.BaseRegistry[Endpoint]
	client    *httpclient.Client
	timeout   time.Duration
}

type Option func(*Manager)

// WithClient shares an existing pooled client.
func WithClient(client *httpclient.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithTimeout bounds a single chat completion call.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithBaseURLs overrides provider base URLs (RUNTIME_LLM_<provider>_URL).
func WithBaseURLs(urls map[string]string) Option {
	return func(m *Manager) {
		for provider, baseURL := range urls {
			if entry, ok := m.endpoints.Get(provider); ok {
				entry.BaseURL = strings.TrimRight(baseURL, "/")
				m.endpoints.Set(provider, entry)
			} else {
				m.endpoints.Set(provider, Endpoint{
					Provider:     provider,
					BaseURL:      strings.TrimRight(baseURL, "/"),
					ChatPath:     fmt.Sprintf("/api/v1/%s/chat", provider),
					StreamPath:   fmt.Sprintf("/api/v1/%s/chat/stream", provider),
					DefaultModel: "",
				})
			}
		}
	}
}

// NewManager builds the provider registry with built-in defaults.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		endpoints: registry.NewBaseRegistry[Endpoint](),
		timeout:   600 * time.Second,
	}
	for _, endpoint := range DefaultEndpoints() {
		m.endpoints.Set(endpoint.Provider, endpoint)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = httpclient.New(httpclient.WithTimeout(m.timeout))
	}
	return m
}

// Endpoint returns the registry entry for a provider.
func (m *Manager) Endpoint(provider string) (Endpoint, bool) {
	return m.endpoints.Get(provider)
}

// Providers lists the registered provider names.
func (m *Manager) Providers() []string {
	return m.endpoints.Names()
}

// chatPayload is the wire request shared by all connector peers.
type chatPayload struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
	TopP        *float64  `json:"top_p,omitempty"`
}

func (m *Manager) buildPayload(req ChatRequest, endpoint Endpoint, stream bool) chatPayload {
	messages := req.Messages
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	model := req.Model
	if model == "" {
		model = endpoint.DefaultModel
	}

	return chatPayload{
		Messages:    messages,
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
		TopP:        req.TopP,
	}
}

// Chat performs a non-streaming chat completion against the provider peer.
func (m *Manager) Chat(ctx context.Context, req ChatRequest) *ChatResponse {
	endpoint, ok := m.endpoints.Get(req.Provider)
	if !ok {
		return &ChatResponse{
			Success:  false,
			Provider: req.Provider,
			Error:    fmt.Sprintf("unknown LLM provider: %s", req.Provider),
		}
	}

	payload := m.buildPayload(req, endpoint, false)

	body, err := json.Marshal(payload)
	if err != nil {
		return &ChatResponse{Success: false, Provider: req.Provider, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint.BaseURL+endpoint.ChatPath, bytes.NewReader(body))
	if err != nil {
		return &ChatResponse{Success: false, Provider: req.Provider, Error: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		slog.Warn("LLM request failed", "provider", req.Provider, "error", err)
		return &ChatResponse{
			Success:  false,
			Provider: req.Provider,
			Model:    payload.Model,
			Error:    fmt.Sprintf("LLM request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ChatResponse{Success: false, Provider: req.Provider, Model: payload.Model, Error: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ChatResponse{
			Success:  false,
			Provider: req.Provider,
			Model:    payload.Model,
			Error:    fmt.Sprintf("LLM returned HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 500)),
		}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return &ChatResponse{Success: false, Provider: req.Provider, Model: payload.Model,
			Error: fmt.Sprintf("invalid LLM response: %v", err)}
	}

	return &ChatResponse{
		Success:  true,
		Content:  extractContent(parsed),
		Model:    payload.Model,
		Provider: req.Provider,
		Usage:    extractUsage(parsed),
	}
}

// CheckHealth probes a provider peer's /health endpoint.
func (m *Manager) CheckHealth(ctx context.Context, provider string) (bool, string) {
	endpoint, ok := m.endpoints.Get(provider)
	if !ok {
		return false, fmt.Sprintf("unknown provider: %s", provider)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.BaseURL+"/health", nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, "ok"
}

// extractContent walks the known response shapes in fallback order:
// message.content, content, choices[0].message.content, choices[0].text,
// response, then the whole document rendered as a string.
func extractContent(parsed map[string]interface{}) string {
	if message, ok := parsed["message"].(map[string]interface{}); ok {
		if content, ok := message["content"].(string); ok {
			return content
		}
	}
	if content, ok := parsed["content"].(string); ok {
		return content
	}
	if choices, ok := parsed["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if message, ok := choice["message"].(map[string]interface{}); ok {
				if content, ok := message["content"].(string); ok {
					return content
				}
			}
			if text, ok := choice["text"].(string); ok {
				return text
			}
		}
	}
	if response, ok := parsed["response"].(string); ok {
		return response
	}
	return fmt.Sprintf("%v", parsed)
}

// extractUsage reads usage counters; a missing total is computed from the
// prompt and completion counts.
func extractUsage(parsed map[string]interface{}) Usage {
	var usage Usage
	raw, ok := parsed["usage"].(map[string]interface{})
	if !ok {
		return usage
	}

	usage.PromptTokens = intField(raw, "prompt_tokens")
	usage.CompletionTokens = intField(raw, "completion_tokens")
	usage.TotalTokens = intField(raw, "total_tokens")
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
