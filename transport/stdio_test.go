package transport

import (
	"io"
	"testing"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/stretchr/testify/require"
)

// newLoopbackStdio wires a StdioConn's writer directly to its own reader so a single
// test can exercise Send/Recv without a real process or socket.
func newLoopbackStdio(t *testing.T) *StdioConn {
	t.Helper()
	r, w := io.Pipe()
	conn := NewStdioConn(r, w, w)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStdioConnSendRecvRoundTrip(t *testing.T) {
	conn := newLoopbackStdio(t)
	req, err := envelope.NewRequest("u-1", "configure", map[string]any{"pin": 17, "direction": "out"})
	require.NoError(t, err)

	go func() {
		_ = conn.Send(req)
	}()

	got, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)
	require.Equal(t, req.Method, got.Method)
}

func TestTrimNewline(t *testing.T) {
	require.Equal(t, "abc", trimNewline("abc\r\n"))
	require.Equal(t, "abc", trimNewline("abc\n"))
	require.Equal(t, "abc", trimNewline("abc"))
}
