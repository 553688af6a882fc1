// Package web implements the web adapter (spec.md §4.9): HTTP for one-shot
// commands, a WebSocket for streaming events, and broadcast delivery to
// every active WebSocket connection.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sparesparrow/ai-servis/adapters"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// Adapter is the web UI surface: HTTP POST for one-shot commands, WebSocket
// for streaming events (spec.md §4.9 "Web adapter").
type Adapter struct {
	adapters.StatsCounter
	conns *adapters.ConnectionRegistry

	addr       string
	dispatcher adapters.Dispatcher
	logger     telemetry.Logger
	upgrader   websocket.Upgrader

	sockets sync.Map // connection id -> *websocket.Conn
	writeMu sync.Map // connection id -> *sync.Mutex (gorilla forbids concurrent writers)

	listener net.Listener
	server   *http.Server
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New constructs a web adapter bound to the given HTTP address.
func New(cfg *config.Store, dispatcher adapters.Dispatcher, opts ...Option) *Adapter {
	a := &Adapter{
		conns:      adapters.NewConnectionRegistry(),
		addr:       cfg.String("web_adapter_addr", ":8090"),
		dispatcher: dispatcher,
		logger:     telemetry.NewNoopLogger(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type commandRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (a *Adapter) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", a.handleCommand)
	mux.HandleFunc("/ws", a.handleWebSocket)
	return mux
}

// Start begins serving HTTP and WebSocket traffic.
func (a *Adapter) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.server = &http.Server{Handler: a.mux(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.logger.Warn(ctx, "web adapter serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server. WebSocket connections already
// upgraded are hijacked from the server and are not closed by Stop.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

func (a *Adapter) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.IncErrors()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.IncMessagesIn()

	result, err := a.dispatcher.Dispatch(r.Context(), req.SessionID, req.UserID, req.Text)
	if err != nil {
		a.IncErrors()
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	a.IncMessagesOut()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (a *Adapter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn(r.Context(), "web adapter upgrade failed", "error", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	sessionID := r.URL.Query().Get("session_id")
	c := a.conns.Add(userID, sessionID)
	a.IncConnections(1)
	a.sockets.Store(c.ID, conn)
	a.writeMu.Store(c.ID, &sync.Mutex{})
	defer func() {
		a.sockets.Delete(c.ID)
		a.writeMu.Delete(c.ID)
		a.conns.Remove(c.ID)
		a.IncConnections(-1)
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		a.conns.Touch(c.ID)
		a.IncMessagesIn()

		result, err := a.dispatcher.Dispatch(r.Context(), c.SessionID, c.UserID, string(payload))
		if err != nil {
			a.IncErrors()
			a.writeJSON(c.ID, map[string]string{"error": err.Error()})
			continue
		}
		a.IncMessagesOut()
		a.writeJSON(c.ID, result)
	}
}

func (a *Adapter) writeJSON(connectionID string, v any) error {
	sock, ok := a.sockets.Load(connectionID)
	if !ok {
		return nil
	}
	muV, _ := a.writeMu.Load(connectionID)
	mu := muV.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return sock.(*websocket.Conn).WriteJSON(v)
}

// SendMessage delivers msg to a single WebSocket connection.
func (a *Adapter) SendMessage(connectionID string, msg any) error {
	if err := a.writeJSON(connectionID, msg); err != nil {
		a.IncErrors()
		return err
	}
	a.IncMessagesOut()
	return nil
}

// BroadcastMessage delivers msg to every active WebSocket connection
// (spec.md §4.9 "broadcast delivers the message to every active
// WebSocket").
func (a *Adapter) BroadcastMessage(msg any) error {
	for _, id := range a.conns.IDs() {
		if err := a.writeJSON(id, msg); err == nil {
			a.IncMessagesOut()
		}
	}
	return nil
}

// Stats returns a snapshot of the adapter's traffic counters.
func (a *Adapter) Stats() adapters.Stats { return a.Snapshot() }

var _ adapters.Adapter = (*Adapter)(nil)
