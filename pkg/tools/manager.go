// Package tools turns resolved parameter maps into HTTP requests against
// tool microservice peers: JSON bodies for plain calls, multipart when a
// tool takes file input.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wsaadi/nova/pkg/httpclient"
	"github.com/wsaadi/nova/pkg/registry"
)

// Entry is one tool registry record.
type Entry struct {
	ToolID             string `json:"tool_id"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	BaseURL            string `json:"base_url"`
	EndpointPath       string `json:"endpoint_path"`
	RequiresFileInput  bool   `json:"requires_file_input"`
	ProducesFileOutput bool   `json:"produces_file_output"`
}

// File is an uploaded file handed through to a tool peer.
type File struct {
	FieldName string
	Filename  string
	Data      []byte
}

// Result is the outcome of one tool call. Failures are values, never panics,
// so the executor can apply the step's on_error policy.
type Result struct {
	Success    bool        `json:"success"`
	Output     interface{} `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// DefaultTimeout bounds a tool call when the ToolConfig does not set one.
const DefaultTimeout = 30 * time.Second

const defaultEndpointPath = "/api/v1/execute"

// Manager is the stateless fan-out layer over tool peers.
type Manager struct {
	tools          *registry.BaseRegistry[Entry]
	client         *httpclient.Client
	defaultTimeout time.Duration
}

type Option func(*Manager)

// WithClient shares an existing pooled client.
func WithClient(client *httpclient.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithDefaultTimeout sets the fallback for calls whose ToolConfig carries no
// timeout (RUNTIME_TOOL_TIMEOUT_SECONDS).
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.defaultTimeout = timeout
		}
	}
}

// WithEndpoints seeds the registry from RUNTIME_TOOL_<id> entries. A URL
// with a path beyond "/" keeps it as the endpoint path; otherwise the
// default execute path applies.
func WithEndpoints(endpoints map[string]string) Option {
	return func(m *Manager) {
		for toolID, rawURL := range endpoints {
			entry := Entry{
				ToolID:       toolID,
				Name:         toolID,
				BaseURL:      strings.TrimRight(rawURL, "/"),
				EndpointPath: defaultEndpointPath,
			}
			if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" && parsed.Path != "/" {
				entry.BaseURL = strings.TrimRight(parsed.Scheme+"://"+parsed.Host, "/")
				entry.EndpointPath = parsed.Path
			}
			m.tools.Set(toolID, entry)
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		tools:          registry.NewBaseRegistry[Entry](),
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = httpclient.New()
	}
	return m
}

// Register adds or replaces a registry entry.
func (m *Manager) Register(entry Entry) {
	m.tools.Set(entry.ToolID, entry)
}

// Entry returns a registry record.
func (m *Manager) Entry(toolID string) (Entry, bool) {
	return m.tools.Get(toolID)
}

// KnownTools returns the registered tool ids as a set, for loader warnings.
func (m *Manager) KnownTools() map[string]bool {
	known := map[string]bool{}
	for _, name := range m.tools.Names() {
		known[name] = true
	}
	return known
}

// Execute POSTs the resolved parameters to the tool peer and parses the
// JSON body as the output. A zero timeout falls back to the manager default.
func (m *Manager) Execute(ctx context.Context, toolID string, parameters map[string]interface{}, files []File, timeout time.Duration) *Result {
	start := time.Now()

	entry, ok := m.tools.Get(toolID)
	if !ok {
		return &Result{
			Success:    false,
			Error:      fmt.Sprintf("unknown tool: %s", toolID),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var req *http.Request
	var err error
	if entry.RequiresFileInput && len(files) > 0 {
		req, err = m.buildMultipartRequest(ctx, entry, parameters, files)
	} else {
		req, err = m.buildJSONRequest(ctx, entry, parameters)
	}
	if err != nil {
		return &Result{
			Success:    false,
			Error:      fmt.Sprintf("failed to build request: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		slog.Warn("tool request failed", "tool", toolID, "error", err)
		return &Result{
			Success:    false,
			Error:      fmt.Sprintf("tool request failed: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{
			Success:    false,
			Error:      fmt.Sprintf("failed to read tool response: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{
			Success:    false,
			Error:      fmt.Sprintf("tool returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 500)),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	var output interface{}
	if err := json.Unmarshal(body, &output); err != nil {
		// Non-JSON bodies pass through as raw text.
		output = string(body)
	}

	return &Result{
		Success:    true,
		Output:     output,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (m *Manager) buildJSONRequest(ctx context.Context, entry Entry, parameters map[string]interface{}) (*http.Request, error) {
	body, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		entry.BaseURL+entry.EndpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (m *Manager) buildMultipartRequest(ctx context.Context, entry Entry, parameters map[string]interface{}, files []File) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range files {
		part, err := writer.CreateFormFile(file.FieldName, file.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, err
		}
	}

	for name, value := range parameters {
		field := scalarString(value)
		if field == "" && value != nil {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, err
			}
			field = string(encoded)
		}
		if err := writer.WriteField(name, field); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		entry.BaseURL+entry.EndpointPath, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// CheckHealth GETs the tool peer's /health endpoint with a 5s timeout.
func (m *Manager) CheckHealth(ctx context.Context, toolID string) (bool, string) {
	entry, ok := m.tools.Get(toolID)
	if !ok {
		return false, fmt.Sprintf("unknown tool: %s", toolID)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.BaseURL+"/health", nil)
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

// scalarString renders scalar parameter values; non-scalars return "" so
// the caller JSON-encodes them.
func scalarString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
