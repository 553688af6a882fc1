// Package orchestrator implements the router and session/context component
// (spec.md §4.6): session management with idle eviction, the intent-to-
// service routing table, the process_command/analyze_intent/route_command
// tool surface, and the auth boundary in front of the command pipeline.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/intent"
)

// Session is a caller's conversational context: identity, last classified
// intent (for follow-up resolution), and an open variables map.
type Session struct {
	ID            string
	UserID        string
	InterfaceType string
	CreatedAt     time.Time
	LastActivity  time.Time
	LastIntent    intent.Intent
	LastParameters map[string]any
	Variables     map[string]any

	history []string
}

const maxSessionHistory = 50

// SessionManager indexes sessions by id and evicts idle ones in the
// background.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sessionTTL time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewSessionManager constructs a SessionManager using session_ttl from cfg.
func NewSessionManager(cfg *config.Store) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		sessionTTL: cfg.Duration("session_ttl", config.DefaultSessionTTL),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Create returns a fresh session id for user_id/interface_type (spec.md
// §4.6 "create_session").
func (m *SessionManager) Create(userID, interfaceType string) *Session {
	now := time.Now()
	s := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		InterfaceType: interfaceType,
		CreatedAt:     now,
		LastActivity:  now,
		Variables:     make(map[string]any),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session by id, touching LastActivity.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.LastActivity = time.Now()
	return s, true
}

// Ensure returns the session by id if it exists, or creates an anonymous
// one with that id (used for caller-supplied session ids on an otherwise
// stateless request, spec.md §4.6).
func (m *SessionManager) Ensure(id, userID, interfaceType string) *Session {
	if id == "" {
		return m.Create(userID, interfaceType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		now := time.Now()
		s = &Session{ID: id, UserID: userID, InterfaceType: interfaceType, CreatedAt: now, LastActivity: now, Variables: make(map[string]any)}
		m.sessions[id] = s
	}
	s.LastActivity = time.Now()
	return s
}

// LastIntent implements pipeline.SessionState.
func (m *SessionManager) LastIntent(sessionID string) (intent.Intent, map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.LastIntent == "" {
		return "", nil, false
	}
	return s.LastIntent, s.LastParameters, true
}

// SetLastIntent implements pipeline.SessionState.
func (m *SessionManager) SetLastIntent(sessionID string, i intent.Intent, params map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	s.LastIntent = i
	s.LastParameters = params
	s.history = append(s.history, string(i))
	if len(s.history) > maxSessionHistory {
		s.history = s.history[len(s.history)-maxSessionHistory:]
	}
}

// SetVariable writes to a session's open variables map. Fails with
// not_found if the session does not exist.
func (m *SessionManager) SetVariable(sessionID, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: "session not found"}
	}
	s.Variables[key] = value
	return nil
}

// Run evicts sessions idle for longer than session_ttl every sweep
// interval, until ctx is done or Stop is called.
func (m *SessionManager) Run(ctx context.Context, sweepInterval time.Duration) {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	defer close(m.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// Stop ends Run.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.stopped
}

func (m *SessionManager) evictIdle() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.sessionTTL {
			delete(m.sessions, id)
		}
	}
}
