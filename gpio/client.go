// Package gpio is a line-delimited JSON client to the GPIO daemon: one
// request object per newline-terminated line, one response object back
// (spec.md §6 "GPIO local daemon"). It is a thin transport binding, not a
// transport.Conn, because the daemon's wire format is its own flat
// command/response shape rather than the RPC envelope used elsewhere.
package gpio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Direction is a GPIO pin's configured direction.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// PinStatus describes one configured pin as reported by the status command.
type PinStatus struct {
	Pin       int       `json:"pin"`
	Direction Direction `json:"direction"`
	Value     *int      `json:"value,omitempty"`
}

type request struct {
	Command   string `json:"command"`
	Pin       int    `json:"pin,omitempty"`
	Direction string `json:"direction,omitempty"`
	Value     *int   `json:"value,omitempty"`
}

type response struct {
	Status  string      `json:"status"`
	Value   *int        `json:"value,omitempty"`
	Pins    []PinStatus `json:"pins,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Client is a connection to a GPIO daemon, grounded on
// gpio_controller.py/hardware_client.py's configure/set/get/status protocol.
type Client struct {
	addr string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Option configures a Client at construction.
type Option func(*Client)

// WithDialTimeout overrides the default TCP dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// New constructs a Client bound to addr (host:port, default GPIO daemon port
// is 8081). Connect must be called before issuing commands.
func New(addr string, opts ...Option) *Client {
	c := &Client{addr: addr, dialTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the TCP connection to the daemon.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("gpio: connect %s: %w", c.addr, err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

func (c *Client) roundTrip(req request) (response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return response{}, fmt.Errorf("gpio: not connected")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return response{}, err
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return response{}, fmt.Errorf("gpio: write: %w", err)
	}

	line, err := c.r.ReadString('\n')
	if err != nil && line == "" {
		return response{}, fmt.Errorf("gpio: read: %w", err)
	}
	var resp response
	if err := json.Unmarshal([]byte(trimNewline(line)), &resp); err != nil {
		return response{}, fmt.Errorf("gpio: decode response: %w", err)
	}
	return resp, nil
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

// Configure sets a pin's direction (spec.md §6: "configure{pin,direction}").
func (c *Client) Configure(pin int, dir Direction) error {
	resp, err := c.roundTrip(request{Command: "configure", Pin: pin, Direction: string(dir)})
	if err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("gpio: configure pin %d: %s", pin, resp.Message)
	}
	return nil
}

// Set writes an output pin's value (0 or 1).
func (c *Client) Set(pin, value int) error {
	v := value
	resp, err := c.roundTrip(request{Command: "set", Pin: pin, Value: &v})
	if err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("gpio: set pin %d: %s", pin, resp.Message)
	}
	return nil
}

// Get reads a pin's current value.
func (c *Client) Get(pin int) (int, error) {
	resp, err := c.roundTrip(request{Command: "get", Pin: pin})
	if err != nil {
		return 0, err
	}
	if resp.Status != "success" || resp.Value == nil {
		return 0, fmt.Errorf("gpio: get pin %d: %s", pin, resp.Message)
	}
	return *resp.Value, nil
}

// Status reports every configured pin.
func (c *Client) Status() ([]PinStatus, error) {
	resp, err := c.roundTrip(request{Command: "status"})
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("gpio: status: %s", resp.Message)
	}
	return resp.Pins, nil
}

// SetHigh is a convenience wrapper setting an output pin to 1 (spec.md §6,
// grounded on gpio_controller.py's set_pin_high).
func (c *Client) SetHigh(pin int) error { return c.Set(pin, 1) }

// SetLow is a convenience wrapper setting an output pin to 0.
func (c *Client) SetLow(pin int) error { return c.Set(pin, 0) }

// Toggle reads a pin then writes its complement, returning the new value
// (grounded on gpio_controller.py's toggle_pin).
func (c *Client) Toggle(pin int) (int, error) {
	current, err := c.Get(pin)
	if err != nil {
		return 0, err
	}
	next := 1 - current
	if err := c.Set(pin, next); err != nil {
		return 0, err
	}
	return next, nil
}
