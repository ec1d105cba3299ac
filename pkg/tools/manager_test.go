package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func managerWith(t *testing.T, entry Entry, handler http.Handler) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	entry.BaseURL = srv.URL
	if entry.EndpointPath == "" {
		entry.EndpointPath = defaultEndpointPath
	}
	m := NewManager()
	m.Register(entry)
	return m
}

func TestExecute_JSONBody(t *testing.T) {
	var gotPath, gotContentType string
	var gotParams map[string]interface{}

	m := managerWith(t, Entry{ToolID: "web-search", Name: "web-search"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotContentType = r.Header.Get("Content-Type")
			json.NewDecoder(r.Body).Decode(&gotParams)
			json.NewEncoder(w).Encode(map[string]interface{}{"results": []string{"x"}})
		}))

	result := m.Execute(context.Background(), "web-search",
		map[string]interface{}{"query": "golang", "limit": 3}, nil, 0)

	if !result.Success {
		t.Fatalf("Execute() error = %v", result.Error)
	}
	if gotPath != "/api/v1/execute" {
		t.Errorf("path = %v", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %v", gotContentType)
	}
	if gotParams["query"] != "golang" || gotParams["limit"] != float64(3) {
		t.Errorf("params = %v", gotParams)
	}
	output, ok := result.Output.(map[string]interface{})
	if !ok || output["results"] == nil {
		t.Errorf("output = %v", result.Output)
	}
	if result.DurationMs < 0 {
		t.Errorf("duration = %d", result.DurationMs)
	}
}

func TestExecute_MultipartWithFiles(t *testing.T) {
	var gotFile string
	var gotField string

	m := managerWith(t, Entry{ToolID: "document-extractor", RequiresFileInput: true},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(8 << 20); err != nil {
				t.Errorf("expected multipart body: %v", err)
				return
			}
			gotField = r.FormValue("mode")
			if fhs := r.MultipartForm.File["file"]; len(fhs) == 1 {
				f, _ := fhs[0].Open()
				data, _ := io.ReadAll(f)
				f.Close()
				gotFile = fhs[0].Filename + ":" + string(data)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"text": "extracted"})
		}))

	result := m.Execute(context.Background(), "document-extractor",
		map[string]interface{}{"mode": "full"},
		[]File{{FieldName: "file", Filename: "a.pdf", Data: []byte("pdfbytes")}}, 0)

	if !result.Success {
		t.Fatalf("Execute() error = %v", result.Error)
	}
	if gotFile != "a.pdf:pdfbytes" {
		t.Errorf("file part = %q", gotFile)
	}
	if gotField != "full" {
		t.Errorf("form field = %q", gotField)
	}
}

func TestExecute_NonJSONBodyPassesThrough(t *testing.T) {
	m := managerWith(t, Entry{ToolID: "echo"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("plain text"))
		}))

	result := m.Execute(context.Background(), "echo", nil, nil, 0)
	if !result.Success || result.Output != "plain text" {
		t.Errorf("result = %+v", result)
	}
}

func TestExecute_Non2xxTruncatesBody(t *testing.T) {
	long := strings.Repeat("e", 900)
	m := managerWith(t, Entry{ToolID: "flaky"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, long, http.StatusUnprocessableEntity)
		}))

	result := m.Execute(context.Background(), "flaky", nil, nil, 0)
	if result.Success {
		t.Fatal("Execute() should fail on non-2xx")
	}
	if !strings.Contains(result.Error, "HTTP 422") {
		t.Errorf("error = %v", result.Error)
	}
	if len(result.Error) > 600 {
		t.Errorf("error body should be truncated, got %d chars", len(result.Error))
	}
}

func TestExecute_ZeroTimeoutUsesManagerDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	m := NewManager(
		WithDefaultTimeout(50*time.Millisecond),
		WithEndpoints(map[string]string{"slow": srv.URL}),
	)

	start := time.Now()
	result := m.Execute(context.Background(), "slow", nil, nil, 0)
	if result.Success {
		t.Fatal("Execute() should time out under the manager default")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, the configured default timeout did not apply", elapsed)
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	m := NewManager()
	result := m.Execute(context.Background(), "ghost", nil, nil, time.Second)
	if result.Success || !strings.Contains(result.Error, "unknown tool") {
		t.Errorf("result = %+v", result)
	}
}

func TestWithEndpoints_URLParsing(t *testing.T) {
	m := NewManager(WithEndpoints(map[string]string{
		"plain":  "http://tool-a:8000",
		"pathed": "http://tool-b:9000/custom/run",
	}))

	plain, ok := m.Entry("plain")
	if !ok || plain.BaseURL != "http://tool-a:8000" || plain.EndpointPath != "/api/v1/execute" {
		t.Errorf("plain entry = %+v", plain)
	}

	pathed, ok := m.Entry("pathed")
	if !ok || pathed.BaseURL != "http://tool-b:9000" || pathed.EndpointPath != "/custom/run" {
		t.Errorf("pathed entry = %+v", pathed)
	}

	known := m.KnownTools()
	if !reflect.DeepEqual(known, map[string]bool{"plain": true, "pathed": true}) {
		t.Errorf("known tools = %v", known)
	}
}

func TestCheckHealth(t *testing.T) {
	m := managerWith(t, Entry{ToolID: "up"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

	if healthy, _ := m.CheckHealth(context.Background(), "up"); !healthy {
		t.Error("CheckHealth() = false for a healthy peer")
	}
	if healthy, _ := m.CheckHealth(context.Background(), "down"); healthy {
		t.Error("CheckHealth() = true for an unknown tool")
	}
}
