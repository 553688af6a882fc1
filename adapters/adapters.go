// Package adapters defines the shared contract implemented by every UI
// surface (text/CLI, web, mobile) that fronts the command pipeline
// (spec.md §4.9): start/stop lifecycle, per-connection send/broadcast, and
// observable traffic statistics.
package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Adapter is the abstract contract shared by every UI surface (spec.md
// §4.9).
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendMessage(connectionID string, msg any) error
	BroadcastMessage(msg any) error
	Stats() Stats
}

// Stats is the traffic counters an adapter exposes (spec.md §4.9
// "observable stats").
type Stats struct {
	Connections int `json:"connections"`
	MessagesIn  int `json:"messages_in"`
	MessagesOut int `json:"messages_out"`
	Errors      int `json:"errors"`
}

// Connection is one live client attachment to an adapter, identified by an
// opaque id and tagged with the user/session it belongs to (spec.md §4.9).
type Connection struct {
	ID           string
	UserID       string
	SessionID    string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Dispatcher submits adapter-received text for classification and
// execution, returning the pipeline's result payload or an error.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, userID, text string) (any, error)
}

// StatsCounter is the shared, mutex-guarded Stats accumulator embedded by
// every concrete adapter.
type StatsCounter struct {
	mu    sync.Mutex
	stats Stats
}

// IncConnections adjusts the live connection count by delta.
func (c *StatsCounter) IncConnections(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Connections += delta
}

// IncMessagesIn records one inbound message.
func (c *StatsCounter) IncMessagesIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.MessagesIn++
}

// IncMessagesOut records one outbound message.
func (c *StatsCounter) IncMessagesOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.MessagesOut++
}

// IncErrors records one adapter-level error.
func (c *StatsCounter) IncErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Errors++
}

// Snapshot returns the current counters.
func (c *StatsCounter) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ConnectionRegistry tracks live connections keyed by their opaque id,
// shared by every concrete adapter (spec.md §4.9 "Connections are
// identified by an opaque id").
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionRegistry constructs an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]*Connection)}
}

// Add registers a new connection for a user/session pair and returns it.
func (r *ConnectionRegistry) Add(userID, sessionID string) *Connection {
	now := time.Now()
	c := &Connection{ID: uuid.NewString(), UserID: userID, SessionID: sessionID, CreatedAt: now, LastActivity: now}
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	return c
}

// Remove drops a connection by id.
func (r *ConnectionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Get looks up a connection by id.
func (r *ConnectionRegistry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Touch refreshes a connection's last-activity timestamp.
func (r *ConnectionRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.LastActivity = time.Now()
	}
}

// IDs returns every currently registered connection id.
func (r *ConnectionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Count returns the number of currently registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
