package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func managerFor(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewManager(WithBaseURLs(map[string]string{"mistral": srv.URL}))
}

func TestManager_DefaultProviders(t *testing.T) {
	m := NewManager()
	for _, provider := range []string{"mistral", "openai", "anthropic", "gemini", "perplexity", "nvidia-nim", "ollama"} {
		if _, ok := m.Endpoint(provider); !ok {
			t.Errorf("missing default endpoint for %s", provider)
		}
	}
}

func TestChat_SystemPromptPrepended(t *testing.T) {
	var seen struct {
		Messages []Message `json:"messages"`
		Model    string    `json:"model"`
		Stream   bool      `json:"stream"`
	}
	m := managerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/mistral/chat" {
			t.Errorf("path = %v", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&seen)
		json.NewEncoder(w).Encode(map[string]interface{}{"content": "ok"})
	}))

	resp := m.Chat(context.Background(), ChatRequest{
		Provider:     "mistral",
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: "user", Content: "hi"}},
	})

	if !resp.Success {
		t.Fatalf("Chat() error = %v", resp.Error)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" || seen.Messages[0].Content != "be brief" {
		t.Errorf("messages = %+v", seen.Messages)
	}
	if seen.Model == "" {
		t.Error("model should fall back to the provider default")
	}
	if seen.Stream {
		t.Error("stream must be false on the chat path")
	}
}

func TestChat_ContentFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message.content", `{"message": {"content": "a"}}`, "a"},
		{"content", `{"content": "b"}`, "b"},
		{"choices message", `{"choices": [{"message": {"content": "c"}}]}`, "c"},
		{"choices text", `{"choices": [{"text": "d"}]}`, "d"},
		{"response", `{"response": "e"}`, "e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := managerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			resp := m.Chat(context.Background(), ChatRequest{Provider: "mistral"})
			if !resp.Success {
				t.Fatalf("Chat() error = %v", resp.Error)
			}
			if resp.Content != tt.want {
				t.Errorf("content = %q, want %q", resp.Content, tt.want)
			}
		})
	}
}

func TestChat_UsageTotalFallback(t *testing.T) {
	m := managerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": "x", "usage": {"prompt_tokens": 7, "completion_tokens": 3}}`))
	}))

	resp := m.Chat(context.Background(), ChatRequest{Provider: "mistral"})
	if !resp.Success {
		t.Fatalf("Chat() error = %v", resp.Error)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("total_tokens = %d, want prompt+completion = 10", resp.Usage.TotalTokens)
	}
}

func TestChat_Non2xxIsFailure(t *testing.T) {
	m := managerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadRequest)
	}))

	resp := m.Chat(context.Background(), ChatRequest{Provider: "mistral"})
	if resp.Success {
		t.Fatal("Chat() should fail on non-2xx")
	}
	if !strings.Contains(resp.Error, "model overloaded") {
		t.Errorf("error should carry the body: %v", resp.Error)
	}
}

func TestChat_UnknownProvider(t *testing.T) {
	m := NewManager()
	resp := m.Chat(context.Background(), ChatRequest{Provider: "nonsense"})
	if resp.Success {
		t.Fatal("Chat() should fail for an unknown provider")
	}
}

func TestChatStream_Tokens(t *testing.T) {
	m := managerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/mistral/chat/stream" {
			t.Errorf("path = %v", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\": [{\"delta\": {\"content\": \"Hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"token\": \"lo\"}\n\n"))
		w.Write([]byte("data: {\"content\": \"!\"}\n\n"))
		w.Write([]byte(": heartbeat comment\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
		w.Write([]byte("data: {\"token\": \"after done, ignored\"}\n\n"))
	}))

	chunks, err := m.ChatStream(context.Background(), ChatRequest{Provider: "mistral"})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("stream chunk error = %v", chunk.Err)
		}
		sb.WriteString(chunk.Text)
	}
	if sb.String() != "Hello!" {
		t.Errorf("streamed text = %q, want Hello!", sb.String())
	}
}

func TestCheckHealth(t *testing.T) {
	m := managerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	healthy, _ := m.CheckHealth(context.Background(), "mistral")
	if !healthy {
		t.Error("CheckHealth() = false for a healthy peer")
	}

	if healthy, _ := m.CheckHealth(context.Background(), "unknown"); healthy {
		t.Error("CheckHealth() = true for an unknown provider")
	}
}
