// Package transport implements the three wire carriers specified in
// spec.md §4.1: WebSocket (one envelope per text frame), HTTP (envelope as
// request/response body), and a line-delimited JSON socket used by the GPIO
// daemon and process-to-process bridges. All three carry the same
// envelope.Envelope so rpc.Server and rpc.Client are transport-agnostic.
package transport

import (
	"encoding/json"
	"io"

	"github.com/sparesparrow/ai-servis/envelope"
)

// Conn is a duplex stream of envelopes. Send may be called from several
// goroutines at once (each implementation serializes its writes); Recv must
// not be called concurrently with itself. Once the connection is gone, Recv
// returns the carrier's own error (see ErrClosed); pending callers must treat
// that as transport_closed per spec.md §4.1.
type Conn interface {
	// Send writes one envelope to the peer.
	Send(e envelope.Envelope) error
	// Recv blocks until the next envelope arrives or the connection closes.
	Recv() (envelope.Envelope, error)
	// Close terminates the connection. Safe to call more than once.
	Close() error
}

// marshalEnvelope is shared by every transport implementation to keep the
// wire encoding identical regardless of carrier.
func marshalEnvelope(e envelope.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEnvelope(data []byte) (envelope.Envelope, error) {
	var e envelope.Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return envelope.Envelope{}, err
	}
	return e, nil
}

// ErrClosed is io.ErrClosedPipe, the error an io.Pipe-backed StdioConn's Send
// returns once its writer has been closed. No Conn implementation wraps other
// carrier errors in it; WebSocketConn returns gorilla/websocket's own errors.
var ErrClosed = io.ErrClosedPipe
