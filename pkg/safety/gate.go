package safety

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
)

const (
	moderationCheckPath = "/api/v1/moderate/check"
	guardrailsCheckPath = "/api/v1/guardrails/check"

	peerTimeout = 10 * time.Second
)

// ModerationResult is the AI moderation peer's verdict.
type ModerationResult struct {
	Approved     bool     `json:"approved"`
	Reason       string   `json:"reason,omitempty"`
	MatchedRules []string `json:"matched_rules,omitempty"`
}

// GuardrailsResult is the guardrails peer's verdict.
type GuardrailsResult struct {
	Approved         bool                   `json:"approved"`
	BlockedReason    string                 `json:"blocked_reason,omitempty"`
	Checks           map[string]interface{} `json:"checks,omitempty"`
	RiskScore        float64                `json:"risk_score,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms,omitempty"`
}

// Decision is the gate's combined outcome for one user turn.
type Decision struct {
	Approved      bool              `json:"approved"`
	BlockedReason string            `json:"blocked_reason,omitempty"`
	Moderation    *ModerationResult `json:"moderation,omitempty"`
	Guardrails    *GuardrailsResult `json:"guardrails,omitempty"`

	// FailOpen lists stages that were skipped because their peer was
	// unreachable. Recorded for diagnostics; the turn proceeds.
	FailOpen []string `json:"fail_open,omitempty"`
}

// Gate is the two-stage safety check applied to every user turn before an
// LLM is touched. It is deterministic given its settings snapshot and the
// peers' responses, and never caches results across turns.
type Gate struct {
	settings      *Settings
	guardrails    *GuardrailsConfig
	client        *httpclient.Client
	moderationURL string
	guardrailsURL string
}

type Option func(*Gate)

func WithClient(client *httpclient.Client) Option {
	return func(g *Gate) {
		g.client = client
	}
}

func WithModerationURL(url string) Option {
	return func(g *Gate) {
		g.moderationURL = strings.TrimRight(url, "/")
	}
}

func WithGuardrailsURL(url string) Option {
	return func(g *Gate) {
		g.guardrailsURL = strings.TrimRight(url, "/")
	}
}

func WithSettings(settings *Settings) Option {
	return func(g *Gate) {
		g.settings = settings
	}
}

func WithGuardrailsConfig(cfg *GuardrailsConfig) Option {
	return func(g *Gate) {
		g.guardrails = cfg
	}
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{
		settings:   &Settings{},
		guardrails: &GuardrailsConfig{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = httpclient.New(httpclient.WithTimeout(peerTimeout))
	}
	return g
}

// Check runs both stages against the content. Stage 2 only runs when stage 1
// approved and the guardrails config is enabled. A block short-circuits: the
// caller must not perform any LLM or tool work.
func (g *Gate) Check(ctx context.Context, content, agentID, userID string) *Decision {
	decision := &Decision{Approved: true}

	rules := g.settings.ApplicableRules(agentID, userID)
	if len(rules) > 0 && g.moderationURL != "" {
		moderation, err := g.checkModeration(ctx, content, rules, agentID, userID)
		if err != nil {
			slog.Warn("moderation peer unreachable, failing open", "error", err)
			decision.FailOpen = append(decision.FailOpen, "moderation")
		} else {
			decision.Moderation = moderation
			if !moderation.Approved {
				decision.Approved = false
				decision.BlockedReason = moderation.Reason
				return decision
			}
		}
	}

	if g.guardrails.Enabled && g.guardrailsURL != "" {
		guardrails, err := g.checkGuardrails(ctx, content, agentID, userID)
		if err != nil {
			slog.Warn("guardrails peer unreachable, failing open", "error", err)
			decision.FailOpen = append(decision.FailOpen, "guardrails")
		} else {
			decision.Guardrails = guardrails
			if !guardrails.Approved {
				decision.Approved = false
				decision.BlockedReason = guardrails.BlockedReason
				return decision
			}
		}
	}

	return decision
}

func (g *Gate) checkModeration(ctx context.Context, content string, rules []Rule, agentID, userID string) (*ModerationResult, error) {
	payload := map[string]interface{}{
		"content":  content,
		"rules":    rules,
		"agent_id": agentID,
		"user_id":  userID,
	}

	var result ModerationResult
	if err := g.post(ctx, g.moderationURL+moderationCheckPath, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *Gate) checkGuardrails(ctx context.Context, content, agentID, userID string) (*GuardrailsResult, error) {
	payload := map[string]interface{}{
		"content":        content,
		"guardrail_type": "all",
		"config":         g.guardrails,
		"context": map[string]interface{}{
			"agent_id": agentID,
			"user_id":  userID,
		},
	}

	var result GuardrailsResult
	if err := g.post(ctx, g.guardrailsURL+guardrailsCheckPath, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *Gate) post(ctx context.Context, url string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, peerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("safety peer returned HTTP %d", resp.StatusCode)
	}

	return json.Unmarshal(respBody, result)
}
