// Package session keeps short-lived conversational state in process memory,
// keyed by an opaque token. A background sweeper evicts sessions whose idle
// time exceeds the TTL.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session doesn't exist or expired.
var ErrSessionNotFound = errors.New("session not found")

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a named, time-bounded conversation context. Messages are
// append-only within the process; truncation happens only through
// ClearMessages.
type Session struct {
	SessionID    string                 `json:"session_id"`
	AgentID      string                 `json:"agent_id"`
	AgentName    string                 `json:"agent_name"`
	UserID       string                 `json:"user_id,omitempty"`
	Messages     []Message              `json:"messages"`
	Variables    map[string]interface{} `json:"variables"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActivity time.Time              `json:"last_activity"`
}

const (
	// DefaultTTL is how long an idle session survives.
	DefaultTTL = 60 * time.Minute

	// sweepInterval is how often the background sweeper runs.
	sweepInterval = 5 * time.Minute
)

// Manager owns all session state. Every method is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// NewManager creates a session manager and starts its eviction sweeper.
// Call Stop to release the sweeper goroutine.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      DefaultTTL,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweep()
	return m
}

// Stop terminates the eviction sweeper.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.evictExpired(time.Now())
		}
	}
}

// evictExpired removes sessions idle strictly longer than the TTL.
// A session whose idle time equals the TTL exactly is kept.
func (m *Manager) evictExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity) > m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("evicted expired sessions", "count", evicted, "remaining", len(m.sessions))
	}
	return evicted
}

// expired reports whether a session is past its TTL. Reads treat expired
// sessions as gone even before the sweeper removes them.
func (m *Manager) expired(sess *Session) bool {
	return time.Since(sess.LastActivity) > m.ttl
}

// Create starts a fresh session for an agent.
func (m *Manager) Create(agentID, agentName, userID string) *Session {
	now := time.Now()
	sess := &Session{
		SessionID:    uuid.NewString(),
		AgentID:      agentID,
		AgentName:    agentName,
		UserID:       userID,
		Messages:     []Message{},
		Variables:    make(map[string]interface{}),
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	m.sessions[sess.SessionID] = sess
	m.mu.Unlock()

	return sess
}

// Get returns the session and touches its activity timestamp.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || m.expired(sess) {
		return nil, false
	}
	sess.LastActivity = time.Now()
	return sess, true
}

// GetOrCreate returns the existing session when its agent matches, and a
// fresh one otherwise. An empty id always creates.
func (m *Manager) GetOrCreate(id, agentID, agentName, userID string) *Session {
	if id != "" {
		if sess, ok := m.Get(id); ok && sess.AgentID == agentID {
			return sess
		}
	}
	return m.Create(agentID, agentName, userID)
}

// AddMessage appends a conversation turn and touches the session.
func (m *Manager) AddMessage(id string, role Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || m.expired(sess) {
		return ErrSessionNotFound
	}

	now := time.Now()
	sess.Messages = append(sess.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	sess.LastActivity = now
	return nil
}

// GetMessages returns the message tail. A non-positive limit returns all.
func (m *Manager) GetMessages(id string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok || m.expired(sess) {
		return nil, ErrSessionNotFound
	}

	messages := sess.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	out := make([]Message, len(messages))
	copy(out, messages)
	return out, nil
}

// SetVariable persists a value across turns within the session.
func (m *Manager) SetVariable(id, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || m.expired(sess) {
		return ErrSessionNotFound
	}
	sess.Variables[key] = value
	sess.LastActivity = time.Now()
	return nil
}

// GetVariable reads a session variable.
func (m *Manager) GetVariable(id, key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok || m.expired(sess) {
		return nil, false
	}
	value, exists := sess.Variables[key]
	return value, exists
}

// ClearMessages truncates the conversation, keeping the session alive.
func (m *Manager) ClearMessages(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || m.expired(sess) {
		return ErrSessionNotFound
	}
	sess.Messages = []Message{}
	sess.LastActivity = time.Now()
	return nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ListSessions returns sessions, optionally filtered by agent.
func (m *Manager) ListSessions(agentID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if m.expired(sess) {
			continue
		}
		if agentID == "" || sess.AgentID == agentID {
			sessions = append(sessions, sess)
		}
	}
	return sessions
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, sess := range m.sessions {
		if !m.expired(sess) {
			count++
		}
	}
	return count
}
