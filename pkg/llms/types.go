// Package llms is one interface over multiple chat-completion providers.
// Each provider is an HTTP peer with a fixed contract; the manager routes
// chat and streaming requests, parses usage, and probes health.
package llms

import "fmt"

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting returned by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage elementwise.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Endpoint describes where a provider's chat peer lives.
type Endpoint struct {
	Provider     string `json:"provider"`
	BaseURL      string `json:"base_url"`
	ChatPath     string `json:"chat_path"`
	StreamPath   string `json:"stream_path"`
	DefaultModel string `json:"default_model"`
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Messages     []Message
	Provider     string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	TopP         *float64
}

// ChatResponse is the provider-agnostic result. Transport and protocol
// failures surface as Success=false with Error set, never as a panic.
type ChatResponse struct {
	Success  bool   `json:"success"`
	Content  string `json:"content,omitempty"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Usage    Usage  `json:"usage"`
	Error    string `json:"error,omitempty"`
}

// StreamChunk is one token from a streaming response. A chunk carries either
// Text or Err; the channel closes after the terminal chunk.
type StreamChunk struct {
	Text string
	Err  error
}

// DefaultEndpoints returns the built-in provider registry entries. Base URLs
// are placeholders until RUNTIME_LLM_<provider>_URL overrides them.
func DefaultEndpoints() []Endpoint {
	providers := []struct {
		name  string
		model string
	}{
		{"mistral", "mistral-small-latest"},
		{"openai", "gpt-4o-mini"},
		{"anthropic", "claude-3-5-sonnet-20241022"},
		{"gemini", "gemini-1.5-flash"},
		{"perplexity", "sonar"},
		{"nvidia-nim", "meta/llama-3.1-8b-instruct"},
		{"ollama", "llama3"},
	}

	endpoints := make([]Endpoint, 0, len(providers))
	for _, p := range providers {
		endpoints = append(endpoints, Endpoint{
			Provider:     p.name,
			BaseURL:      fmt.Sprintf("http://%s-connector:8000", p.name),
			ChatPath:     fmt.Sprintf("/api/v1/%s/chat", p.name),
			StreamPath:   fmt.Sprintf("/api/v1/%s/chat/stream", p.name),
			DefaultModel: p.model,
		})
	}
	return endpoints
}
