package safety

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplicableRules(t *testing.T) {
	settings := &Settings{
		GlobalConfig: RuleSet{
			Enabled: true,
			Rules: []Rule{
				{Rule: "global enabled", Enabled: true},
				{Rule: "global disabled", Enabled: false},
			},
		},
		AgentConfigs: map[string]RuleSet{
			"agent-1": {Enabled: true, Rules: []Rule{{Rule: "agent rule", Enabled: true}}},
			"agent-2": {Enabled: false, Rules: []Rule{{Rule: "off set", Enabled: true}}},
		},
		UserConfigs: map[string]RuleSet{
			"user-1": {Enabled: true, Rules: []Rule{{Rule: "user rule", Enabled: true}}},
		},
	}

	rules := settings.ApplicableRules("agent-1", "user-1")
	if len(rules) != 3 {
		t.Fatalf("rules = %d, want global+agent+user = 3", len(rules))
	}

	// A disabled parent set drops its rules even when individual rules are on.
	rules = settings.ApplicableRules("agent-2", "")
	if len(rules) != 1 || rules[0].Rule != "global enabled" {
		t.Errorf("rules = %+v", rules)
	}

	rules = settings.ApplicableRules("", "")
	if len(rules) != 1 {
		t.Errorf("global-only rules = %d, want 1", len(rules))
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moderation.json")
	doc := `{"global_config": {"enabled": true, "rules": [{"rule": "no pii", "enabled": true}]}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if !settings.GlobalConfig.Enabled || len(settings.GlobalConfig.Rules) != 1 {
		t.Errorf("settings = %+v", settings)
	}

	// A missing file yields empty settings, not an error.
	empty, err := LoadSettings(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.ApplicableRules("", "")) != 0 {
		t.Error("absent file should produce no rules")
	}

	if _, err := LoadSettings(""); err != nil {
		t.Errorf("empty path should not error: %v", err)
	}
}

func TestLoadGuardrailsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guardrails.json")
	doc := `{"enabled": true, "check_jailbreak": true, "blocked_topics": ["weapons"], "risk_score_threshold": 0.8}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGuardrailsConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enabled || !cfg.CheckJailbreak || cfg.RiskScoreThreshold != 0.8 {
		t.Errorf("cfg = %+v", cfg)
	}

	missing, err := LoadGuardrailsConfig(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if missing.Enabled {
		t.Error("absent file should leave guardrails disabled")
	}
}
