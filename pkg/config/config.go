package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix shared by all runtime environment variables.
const EnvPrefix = "RUNTIME_"

// Config is the process-level runtime configuration. Everything comes from
// the environment; agents themselves are described by ADL documents.
type Config struct {
	Host              string `koanf:"host"`
	Port              int    `koanf:"port"`
	CORSOrigins       string `koanf:"cors_origins"`
	AgentsStoragePath string `koanf:"agents_storage_path"`

	// ToolTimeoutSeconds bounds a single tool call unless the agent's
	// ToolConfig sets its own timeout.
	ToolTimeoutSeconds int `koanf:"tool_timeout_seconds"`

	// LLMTimeoutSeconds bounds a single chat completion request.
	LLMTimeoutSeconds int `koanf:"llm_timeout_seconds"`

	SessionTTLMinutes int    `koanf:"session_ttl_minutes"`
	WatchAgents       bool   `koanf:"watch_agents"`
	LogLevel          string `koanf:"log_level"`

	// ToolEndpoints maps tool ids to base URLs (RUNTIME_TOOL_<id>).
	ToolEndpoints map[string]string

	// LLMEndpoints maps provider names to base URLs (RUNTIME_LLM_<provider>_URL).
	LLMEndpoints map[string]string

	ModerationSettingsPath string
	GuardrailsConfigPath   string
}

// Default returns a Config populated with documented defaults.
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               8000,
		AgentsStoragePath:  "./agents",
		ToolTimeoutSeconds: 60,
		LLMTimeoutSeconds:  600,
		SessionTTLMinutes:  60,
		WatchAgents:        true,
		LogLevel:           "info",
		ToolEndpoints:      map[string]string{},
		LLMEndpoints:       map[string]string{},
	}
}

// Load reads the runtime configuration from the environment.
func Load() (*Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment config: %w", err)
	}

	// Dynamic keys: RUNTIME_TOOL_<id> and RUNTIME_LLM_<provider>_URL.
	for key, value := range k.All() {
		str, ok := value.(string)
		if !ok || str == "" {
			continue
		}
		switch {
		case key == "tool_timeout_seconds" || key == "llm_timeout_seconds":
			// scalar settings, not endpoint entries
		case strings.HasPrefix(key, "tool_"):
			id := strings.TrimPrefix(key, "tool_")
			cfg.ToolEndpoints[id] = str
			// Environment variable names cannot carry dashes, so a tool id
			// like "document-extractor" arrives as TOOL_DOCUMENT_EXTRACTOR.
			cfg.ToolEndpoints[strings.ReplaceAll(id, "_", "-")] = str
		case strings.HasPrefix(key, "llm_") && strings.HasSuffix(key, "_url"):
			provider := strings.TrimSuffix(strings.TrimPrefix(key, "llm_"), "_url")
			cfg.LLMEndpoints[provider] = str
			cfg.LLMEndpoints[strings.ReplaceAll(provider, "_", "-")] = str
		}
	}

	cfg.ModerationSettingsPath = os.Getenv("MODERATION_SETTINGS_PATH")
	cfg.GuardrailsConfigPath = os.Getenv("NEMO_GUARDRAILS_CONFIG_PATH")

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	return cfg, nil
}

// CORSOriginList splits the configured origins string.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// Address returns the host:port listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
