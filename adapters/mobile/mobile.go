// Package mobile implements the mobile adapter (spec.md §4.9): REST
// register/unregister, command submission, push-token registration, and a
// WebSocket for live updates. An auth middleware rejects requests lacking
// X-Device-ID except for registration and health.
package mobile

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sparesparrow/ai-servis/adapters"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// Device is a registered mobile client.
type Device struct {
	ID        string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	PushToken string    `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Adapter is the mobile UI surface: REST device lifecycle + command
// submission, plus a WebSocket for live updates (spec.md §4.9 "Mobile
// adapter").
type Adapter struct {
	adapters.StatsCounter
	conns *adapters.ConnectionRegistry

	addr       string
	dispatcher adapters.Dispatcher
	logger     telemetry.Logger
	upgrader   websocket.Upgrader

	devicesMu sync.RWMutex
	devices   map[string]*Device

	sockets sync.Map // device id -> *websocket.Conn
	writeMu sync.Map // device id -> *sync.Mutex

	listener net.Listener
	server   *http.Server
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New constructs a mobile adapter bound to the given HTTP address.
func New(cfg *config.Store, dispatcher adapters.Dispatcher, opts ...Option) *Adapter {
	a := &Adapter{
		conns:      adapters.NewConnectionRegistry(),
		addr:       cfg.String("mobile_adapter_addr", ":8091"),
		dispatcher: dispatcher,
		logger:     telemetry.NewNoopLogger(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		devices:    make(map[string]*Device),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/register", a.handleRegister)
	mux.HandleFunc("/unregister", a.handleUnregister)
	mux.HandleFunc("/command", a.handleCommand)
	mux.HandleFunc("/push-token", a.handlePushToken)
	mux.HandleFunc("/ws", a.handleWebSocket)
	return a.authMiddleware(mux)
}

// authMiddleware rejects requests lacking X-Device-ID, except registration
// and health (spec.md §4.9 "an auth middleware rejects requests lacking
// X-Device-ID except for registration and health").
func (a *Adapter) authMiddleware(next http.Handler) http.Handler {
	exempt := map[string]bool{"/register": true, "/health": true}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		deviceID := r.Header.Get("X-Device-ID")
		if deviceID == "" {
			http.Error(w, "missing X-Device-ID", http.StatusUnauthorized)
			return
		}
		a.devicesMu.RLock()
		_, ok := a.devices[deviceID]
		a.devicesMu.RUnlock()
		if !ok {
			http.Error(w, "unknown device", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
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
			a.logger.Warn(ctx, "mobile adapter serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d := &Device{ID: uuid.NewString(), UserID: req.UserID, CreatedAt: time.Now()}
	a.devicesMu.Lock()
	a.devices[d.ID] = d
	a.devicesMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

func (a *Adapter) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.Header.Get("X-Device-ID")
	a.devicesMu.Lock()
	delete(a.devices, deviceID)
	a.devicesMu.Unlock()
	a.sockets.Delete(deviceID)
	a.writeMu.Delete(deviceID)
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) handlePushToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		PushToken string `json:"push_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deviceID := r.Header.Get("X-Device-ID")
	a.devicesMu.Lock()
	defer a.devicesMu.Unlock()
	d, ok := a.devices[deviceID]
	if !ok {
		http.Error(w, "unknown device", http.StatusUnauthorized)
		return
	}
	d.PushToken = req.PushToken
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.Header.Get("X-Device-ID")
	a.devicesMu.RLock()
	d, ok := a.devices[deviceID]
	a.devicesMu.RUnlock()
	if !ok {
		http.Error(w, "unknown device", http.StatusUnauthorized)
		return
	}

	var req struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.IncErrors()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.IncMessagesIn()

	result, err := a.dispatcher.Dispatch(r.Context(), req.SessionID, d.UserID, req.Text)
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
	deviceID := r.Header.Get("X-Device-ID")
	a.devicesMu.RLock()
	d, ok := a.devices[deviceID]
	a.devicesMu.RUnlock()
	if !ok {
		http.Error(w, "unknown device", http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn(r.Context(), "mobile adapter upgrade failed", "error", err)
		return
	}

	c := a.conns.Add(d.UserID, "")
	a.IncConnections(1)
	a.sockets.Store(d.ID, conn)
	a.writeMu.Store(d.ID, &sync.Mutex{})
	defer func() {
		a.sockets.Delete(d.ID)
		a.writeMu.Delete(d.ID)
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

		result, err := a.dispatcher.Dispatch(r.Context(), c.SessionID, d.UserID, string(payload))
		if err != nil {
			a.IncErrors()
			a.writeJSON(d.ID, map[string]string{"error": err.Error()})
			continue
		}
		a.IncMessagesOut()
		a.writeJSON(d.ID, result)
	}
}

func (a *Adapter) writeJSON(deviceID string, v any) error {
	sock, ok := a.sockets.Load(deviceID)
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: "device has no open socket"}
	}
	muV, _ := a.writeMu.Load(deviceID)
	mu := muV.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return sock.(*websocket.Conn).WriteJSON(v)
}

// SendMessage delivers msg to a single device's WebSocket, by device id.
func (a *Adapter) SendMessage(connectionID string, msg any) error {
	if err := a.writeJSON(connectionID, msg); err != nil {
		a.IncErrors()
		return err
	}
	a.IncMessagesOut()
	return nil
}

// BroadcastMessage delivers msg to every connected device.
func (a *Adapter) BroadcastMessage(msg any) error {
	a.devicesMu.RLock()
	ids := make([]string, 0, len(a.devices))
	for id := range a.devices {
		ids = append(ids, id)
	}
	a.devicesMu.RUnlock()

	for _, id := range ids {
		if err := a.writeJSON(id, msg); err == nil {
			a.IncMessagesOut()
		}
	}
	return nil
}

// Stats returns a snapshot of the adapter's traffic counters.
func (a *Adapter) Stats() adapters.Stats { return a.Snapshot() }

var _ adapters.Adapter = (*Adapter)(nil)
