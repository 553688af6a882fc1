package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sparesparrow/ai-servis/envelope"
)

// WebSocketConn carries one envelope per text frame (spec.md §4.1). Either
// side may send a notification at any time; responses are matched to
// requests by Envelope.ID, not by frame order, so callers must not assume
// FIFO completion (spec.md §5).
type WebSocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// upgrader is shared across server-side upgrades; origin checking is left to
// the caller's HTTP handler chain (the default CheckOrigin always accepting
// cross-origin requests matches the teacher's permissive demo transports and
// is tightened by adapters that need it via a custom Upgrader).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeWebSocket upgrades an inbound HTTP request to a WebSocketConn.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocketConn, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocketConn{conn: c}, nil
}

// DialWebSocket connects to a WebSocket server at url and returns a
// WebSocketConn. Reconnection, if desired, is the caller's responsibility
// (spec.md §4.1: "Reconnect is the client's responsibility").
func DialWebSocket(url string, handshakeTimeout time.Duration) (*WebSocketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	c, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocketConn{conn: c}, nil
}

// Send writes env as a single UTF-8 JSON text frame.
func (c *WebSocketConn) Send(env envelope.Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Recv blocks for the next text frame and decodes it as an envelope.
func (c *WebSocketConn) Recv() (envelope.Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return envelope.Envelope{}, err
	}
	return unmarshalEnvelope(data)
}

// Close closes the underlying WebSocket connection.
func (c *WebSocketConn) Close() error {
	return c.conn.Close()
}
