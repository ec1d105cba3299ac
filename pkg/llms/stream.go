package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatStream performs a streaming chat completion. The peer answers with
// Server-Sent Events; each non-empty token is forwarded on the returned
// channel, which closes after the [DONE] terminator or an error chunk.
func (m *Manager) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	endpoint, ok := m.endpoints.Get(req.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s", req.Provider)
	}

	payload := m.buildPayload(req, endpoint, true)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint.BaseURL+endpoint.StreamPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	// The retrying wrapper is not suited to long-lived streams; use the
	// pooled client directly.
	resp, err := m.client.Unwrap().Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer cancel()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}

			token := extractStreamToken(data)
			if token == "" {
				continue
			}

			select {
			case chunks <- StreamChunk{Text: token}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			chunks <- StreamChunk{Err: fmt.Errorf("stream read failed: %w", err)}
		}
	}()

	return chunks, nil
}

// extractStreamToken pulls a token out of one SSE payload, trying
// choices[0].delta.content, then token, then content.
func extractStreamToken(data string) string {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return ""
	}

	if choices, ok := parsed["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if delta, ok := choice["delta"].(map[string]interface{}); ok {
				if content, ok := delta["content"].(string); ok && content != "" {
					return content
				}
			}
		}
	}
	if token, ok := parsed["token"].(string); ok && token != "" {
		return token
	}
	if content, ok := parsed["content"].(string); ok && content != "" {
		return content
	}
	return ""
}
