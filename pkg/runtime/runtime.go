// Package runtime wires the process together: configuration, agent loader,
// session manager, LLM and tool managers, safety gate, workflow executor and
// metrics, all sharing one pooled HTTP client.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wsaadi/nova/pkg/config"
	"github.com/wsaadi/nova/pkg/httpclient"
	"github.com/wsaadi/nova/pkg/llms"
	"github.com/wsaadi/nova/pkg/loader"
	"github.com/wsaadi/nova/pkg/observability"
	"github.com/wsaadi/nova/pkg/safety"
	"github.com/wsaadi/nova/pkg/session"
	"github.com/wsaadi/nova/pkg/tools"
	"github.com/wsaadi/nova/pkg/workflow"
)

// Runtime owns every long-lived component of the process.
type Runtime struct {
	Config   *config.Config
	Loader   *loader.Loader
	Sessions *session.Manager
	LLMs     *llms.Manager
	Tools    *tools.Manager
	Gate     *safety.Gate
	Executor *workflow.Executor
	Metrics  *observability.Metrics

	StartedAt time.Time
}

// New assembles the runtime from configuration. Nothing starts running
// until Start.
func New(cfg *config.Config) (*Runtime, error) {
	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Transport: httpclient.NewPooledTransport()}),
	)

	llmManager := llms.NewManager(
		llms.WithClient(client),
		llms.WithTimeout(time.Duration(cfg.LLMTimeoutSeconds)*time.Second),
		llms.WithBaseURLs(cfg.LLMEndpoints),
	)

	toolManager := tools.NewManager(
		tools.WithClient(client),
		tools.WithEndpoints(cfg.ToolEndpoints),
		tools.WithDefaultTimeout(time.Duration(cfg.ToolTimeoutSeconds)*time.Second),
	)

	agentLoader := loader.New(cfg.AgentsStoragePath,
		loader.WithKnownTools(toolManager.KnownTools))

	sessions := session.NewManager(
		session.WithTTL(time.Duration(cfg.SessionTTLMinutes) * time.Minute))

	gate, err := buildGate(cfg, client)
	if err != nil {
		return nil, err
	}

	executor := workflow.NewExecutor(llmManager, toolManager, sessions)

	return &Runtime{
		Config:   cfg,
		Loader:   agentLoader,
		Sessions: sessions,
		LLMs:     llmManager,
		Tools:    toolManager,
		Gate:     gate,
		Executor: executor,
		Metrics:  observability.NewMetrics(),
	}, nil
}

// buildGate loads the moderation and guardrails documents and binds the gate
// to its peers. The peers are addressed like tools: RUNTIME_TOOL_MODERATION
// and RUNTIME_TOOL_GUARDRAILS.
func buildGate(cfg *config.Config, client *httpclient.Client) (*safety.Gate, error) {
	settings, err := safety.LoadSettings(cfg.ModerationSettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load moderation settings: %w", err)
	}
	guardrails, err := safety.LoadGuardrailsConfig(cfg.GuardrailsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load guardrails config: %w", err)
	}

	opts := []safety.Option{
		safety.WithClient(client),
		safety.WithSettings(settings),
		safety.WithGuardrailsConfig(guardrails),
	}
	if url, ok := cfg.ToolEndpoints["moderation"]; ok {
		opts = append(opts, safety.WithModerationURL(url))
	}
	if url, ok := cfg.ToolEndpoints["guardrails"]; ok {
		opts = append(opts, safety.WithGuardrailsURL(url))
	}

	return safety.NewGate(opts...), nil
}

// Start loads the agent registry and, when configured, begins watching the
// agents directory for hot reloads.
func (r *Runtime) Start(ctx context.Context) error {
	r.StartedAt = time.Now()

	if err := r.Loader.Load(); err != nil {
		return err
	}

	if r.Config.WatchAgents {
		if err := r.Loader.Watch(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Stop tears the background machinery down.
func (r *Runtime) Stop() {
	r.Loader.StopWatching()
	r.Sessions.Stop()
}

// Uptime reports how long the runtime has been started.
func (r *Runtime) Uptime() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return time.Since(r.StartedAt)
}
