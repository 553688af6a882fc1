package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/transport"
)

// DefaultCallTimeout is used by Call when no deadline is supplied, matching
// spec.md §4.2's default tool_call_timeout.
const DefaultCallTimeout = 30 * time.Second

// Client issues requests over a transport.Conn and correlates responses by
// envelope id, the pattern grounded in the teacher's stdio MCP caller. One
// Client owns one Conn; callers share it from multiple goroutines.
type Client struct {
	conn transport.Conn

	mu      sync.Mutex
	pending map[string]chan envelope.Envelope
	closed  bool
	closeErr error
}

// NewClient wraps conn and starts its receive loop. The caller is
// responsible for eventually calling Close, typically when conn itself
// closes or the owning process shuts down.
func NewClient(conn transport.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan envelope.Envelope),
	}
	go c.recvLoop()
	return c
}

func (c *Client) recvLoop() {
	for {
		env, err := c.conn.Recv()
		if err != nil {
			c.closeWith(err)
			return
		}
		if env.ID == "" {
			// Events and notifications have no waiting caller; drop them
			// here. A higher layer that needs events should wrap Conn.
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *Client) closeWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	for id, ch := range c.pending {
		ch <- envelope.NewErrorResponse(id, envelope.ErrTransportClosed, "connection closed")
		delete(c.pending, id)
	}
}

// Call sends a request and blocks until the matching response arrives, the
// context is cancelled, or timeout elapses (DefaultCallTimeout if zero). The
// returned json.RawMessage is the response Result; a response carrying an
// Error is returned as an *envelope.Error. The timeout and ctx cover the wait
// for the response, not conn.Send: a Send that blocks (for example on a pipe
// the peer never reads) holds Call until it returns.
func (c *Client) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	id := uuid.NewString()
	req, err := envelope.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode params: %w", err)
	}

	ch := make(chan envelope.Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &envelope.Error{Code: envelope.ErrTransportClosed, Message: "connection closed"}
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.conn.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("rpc: send request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if !resp.Ok() {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, &envelope.Error{Code: envelope.ErrTimeout, Message: fmt.Sprintf("call to %q timed out after %s", method, timeout)}
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification; there is no response to wait
// for.
func (c *Client) Notify(method string, params any) error {
	env, err := envelope.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("rpc: encode params: %w", err)
	}
	return c.conn.Send(env)
}

// Close closes the underlying connection and fails any pending calls with
// transport_closed.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.closeWith(err)
	return err
}
