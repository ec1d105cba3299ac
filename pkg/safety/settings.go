// Package safety enforces content moderation before any LLM work happens.
// The gate runs two stages: rule-based AI moderation, then NeMo-style
// guardrails. Both delegate to HTTP peers and fail open when the peer is
// unreachable; a peer outage degrades checking, it does not stop the turn.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
)

// Rule is one natural-language moderation instruction.
type Rule struct {
	ID      string `json:"id,omitempty"`
	Rule    string `json:"rule"`
	Enabled bool   `json:"enabled"`
}

// RuleSet scopes a list of rules behind a parent toggle.
type RuleSet struct {
	Enabled bool   `json:"enabled"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Settings is the moderation rules document: global rules plus per-agent
// and per-user overlays.
type Settings struct {
	GlobalConfig RuleSet            `json:"global_config"`
	AgentConfigs map[string]RuleSet `json:"agent_configs,omitempty"`
	UserConfigs  map[string]RuleSet `json:"user_configs,omitempty"`
}

// GuardrailsConfig mirrors the guardrails peer's check toggles.
type GuardrailsConfig struct {
	Enabled            bool               `json:"enabled"`
	CheckTopics        bool               `json:"check_topics"`
	CheckContent       bool               `json:"check_content"`
	CheckJailbreak     bool               `json:"check_jailbreak"`
	BlockedTopics      []string           `json:"blocked_topics,omitempty"`
	Thresholds         map[string]float64 `json:"thresholds,omitempty"`
	RiskScoreThreshold float64            `json:"risk_score_threshold,omitempty"`
}

// LoadSettings reads the moderation rules document. A missing path yields
// empty settings (the gate approves everything without a peer call).
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return &Settings{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read moderation settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse moderation settings: %w", err)
	}
	return &settings, nil
}

// LoadGuardrailsConfig reads the guardrails document, tolerating absence.
func LoadGuardrailsConfig(path string) (*GuardrailsConfig, error) {
	if path == "" {
		return &GuardrailsConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GuardrailsConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read guardrails config: %w", err)
	}

	var cfg GuardrailsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse guardrails config: %w", err)
	}
	return &cfg, nil
}

// ApplicableRules concatenates global, agent-scoped and user-scoped rules
// whose individual and parent enabled flags are both true.
func (s *Settings) ApplicableRules(agentID, userID string) []Rule {
	var rules []Rule

	appendEnabled := func(set RuleSet) {
		if !set.Enabled {
			return
		}
		for _, rule := range set.Rules {
			if rule.Enabled {
				rules = append(rules, rule)
			}
		}
	}

	appendEnabled(s.GlobalConfig)
	if agentID != "" {
		if set, ok := s.AgentConfigs[agentID]; ok {
			appendEnabled(set)
		}
	}
	if userID != "" {
		if set, ok := s.UserConfigs[userID]; ok {
			appendEnabled(set)
		}
	}

	return rules
}
