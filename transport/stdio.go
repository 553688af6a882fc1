package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/sparesparrow/ai-servis/envelope"
)

// StdioConn is a line-delimited JSON socket Conn: one envelope per
// newline-terminated line, as used by the GPIO daemon and
// process-to-process bridges (spec.md §4.1, §6).
type StdioConn struct {
	w       io.Writer
	r       *bufio.Reader
	closer  io.Closer
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewStdioConn wraps a read/write pair (a pipe, a socket, stdin/stdout) as a
// line-delimited envelope Conn. closer is invoked by Close and may be nil.
func NewStdioConn(r io.Reader, w io.Writer, closer io.Closer) *StdioConn {
	return &StdioConn{w: w, r: bufio.NewReader(r), closer: closer}
}

// Send writes env as a single JSON line terminated by '\n'.
func (c *StdioConn) Send(env envelope.Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(c.w, "\n")
	return err
}

// Recv reads the next newline-terminated JSON line and decodes it.
func (c *StdioConn) Recv() (envelope.Envelope, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if line == "" {
			return envelope.Envelope{}, fmt.Errorf("stdio conn: %w", err)
		}
		// Fall through: a final line without a trailing newline is still valid.
	}
	return unmarshalEnvelope([]byte(trimNewline(line)))
}

// Close closes the underlying closer, if any. Safe to call more than once.
func (c *StdioConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func trimNewline(s string) string {
	n := len(s)
	if n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	n = len(s)
	if n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
