package session

import (
	"testing"
	"time"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	sess := m.Create("agent-1", "Agent One", "user-9")
	if sess.SessionID == "" {
		t.Fatal("Create() returned empty id")
	}
	if sess.AgentID != "agent-1" || sess.UserID != "user-9" {
		t.Errorf("session = %+v", sess)
	}

	got, ok := m.Get(sess.SessionID)
	if !ok {
		t.Fatal("Get() missed a live session")
	}
	if got.SessionID != sess.SessionID {
		t.Errorf("Get() id = %v", got.SessionID)
	}

	if _, ok := m.Get("nope"); ok {
		t.Error("Get() found an unknown id")
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	first := m.GetOrCreate("", "agent-1", "Agent One", "")
	same := m.GetOrCreate(first.SessionID, "agent-1", "Agent One", "")
	if same.SessionID != first.SessionID {
		t.Error("GetOrCreate() should return the existing session for a matching agent")
	}

	// A different agent gets a fresh session even with the same id.
	other := m.GetOrCreate(first.SessionID, "agent-2", "Agent Two", "")
	if other.SessionID == first.SessionID {
		t.Error("GetOrCreate() reused a session across agents")
	}
}

func TestManager_MessagesAppendOnly(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	sess := m.Create("a", "A", "")
	for _, content := range []string{"one", "two", "three"} {
		if err := m.AddMessage(sess.SessionID, RoleUser, content); err != nil {
			t.Fatal(err)
		}
	}

	messages, err := m.GetMessages(sess.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Timestamp.Before(messages[i-1].Timestamp) {
			t.Error("timestamps must be non-decreasing")
		}
	}

	tail, err := m.GetMessages(sess.SessionID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].Content != "two" {
		t.Errorf("tail = %+v", tail)
	}

	if err := m.ClearMessages(sess.SessionID); err != nil {
		t.Fatal(err)
	}
	cleared, _ := m.GetMessages(sess.SessionID, 0)
	if len(cleared) != 0 {
		t.Errorf("messages after clear = %d", len(cleared))
	}
}

func TestManager_Variables(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	sess := m.Create("a", "A", "")
	if err := m.SetVariable(sess.SessionID, "step", 3); err != nil {
		t.Fatal(err)
	}

	value, ok := m.GetVariable(sess.SessionID, "step")
	if !ok || value != 3 {
		t.Errorf("GetVariable() = %v, %v", value, ok)
	}
	if _, ok := m.GetVariable(sess.SessionID, "missing"); ok {
		t.Error("GetVariable() found a missing key")
	}
}

func TestManager_TTLBoundary(t *testing.T) {
	m := NewManager(WithTTL(time.Minute))
	defer m.Stop()

	sess := m.Create("a", "A", "")
	now := time.Now()

	// Idle exactly at the TTL is not expired; strict inequality applies.
	sess.LastActivity = now.Add(-time.Minute)
	if evicted := m.evictExpired(now); evicted != 0 {
		t.Error("idle == ttl must not be evicted")
	}

	sess.LastActivity = now.Add(-time.Minute - time.Nanosecond)
	if evicted := m.evictExpired(now); evicted != 1 {
		t.Error("idle > ttl must be evicted")
	}
}

func TestManager_EvictsExpired(t *testing.T) {
	m := NewManager(WithTTL(time.Minute))
	defer m.Stop()

	live := m.Create("a", "A", "")
	stale := m.Create("a", "A", "")
	stale.LastActivity = time.Now().Add(-2 * time.Minute)

	if evicted := m.evictExpired(time.Now()); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, ok := m.Get(stale.SessionID); ok {
		t.Error("expired session still readable")
	}
	if _, ok := m.Get(live.SessionID); !ok {
		t.Error("live session was evicted")
	}
}

func TestManager_ExpiredSessionReadsAsGone(t *testing.T) {
	m := NewManager(WithTTL(time.Minute))
	defer m.Stop()

	sess := m.Create("a", "A", "")
	m.AddMessage(sess.SessionID, RoleUser, "old")
	sess.LastActivity = time.Now().Add(-2 * time.Minute)

	if _, ok := m.Get(sess.SessionID); ok {
		t.Error("Get() must treat an expired session as gone")
	}
	if _, err := m.GetMessages(sess.SessionID, 0); err == nil {
		t.Error("GetMessages() must not observe old messages on an expired session")
	}
}

func TestManager_ListAndCount(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	m.Create("a", "A", "")
	m.Create("a", "A", "")
	m.Create("b", "B", "")

	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if got := len(m.ListSessions("a")); got != 2 {
		t.Errorf("ListSessions(a) = %d, want 2", got)
	}
	if got := len(m.ListSessions("")); got != 3 {
		t.Errorf("ListSessions() = %d, want 3", got)
	}

	sess := m.ListSessions("b")[0]
	m.Delete(sess.SessionID)
	if got := m.Count(); got != 2 {
		t.Errorf("Count() after delete = %d, want 2", got)
	}
}
