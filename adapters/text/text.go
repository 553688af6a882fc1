// Package text implements the text/CLI adapter (spec.md §4.9): a line
// oriented TCP listener plus an interactive REPL, both submitting each
// line as a command and printing back the response or error.
package text

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sparesparrow/ai-servis/adapters"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// Adapter is the text/CLI UI surface: a TCP endpoint where each connected
// client's lines are treated as commands, and an optional REPL reading from
// a local io.Reader/Writer pair (spec.md §4.9 "Text/CLI adapter").
type Adapter struct {
	adapters.StatsCounter
	conns *adapters.ConnectionRegistry

	addr       string
	dispatcher adapters.Dispatcher
	logger     telemetry.Logger

	listener net.Listener
	writers  sync.Map // connection id -> io.Writer

	wg sync.WaitGroup
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New constructs a text/CLI adapter bound to the given TCP address.
func New(cfg *config.Store, dispatcher adapters.Dispatcher, opts ...Option) *Adapter {
	a := &Adapter{
		conns:      adapters.NewConnectionRegistry(),
		addr:       cfg.String("text_adapter_addr", ":7000"),
		dispatcher: dispatcher,
		logger:     telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start opens the TCP listener and begins accepting connections.
func (a *Adapter) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.listener = ln

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.acceptLoop(ctx)
	}()
	return nil
}

// Stop closes the listener and waits for the accept loop to drain.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.wg.Wait()
	return nil
}

func (a *Adapter) acceptLoop(ctx context.Context) {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				a.logger.Warn(ctx, "text adapter accept failed", "error", err)
				return
			}
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.serveConn(ctx, conn)
		}()
	}
}

func (a *Adapter) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	c := a.conns.Add("", "")
	a.IncConnections(1)
	a.writers.Store(c.ID, conn)
	defer func() {
		a.writers.Delete(c.ID)
		a.conns.Remove(c.ID)
		a.IncConnections(-1)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		a.conns.Touch(c.ID)
		a.IncMessagesIn()
		a.handleLine(ctx, c, conn, line)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		a.logger.Warn(ctx, "text adapter read error", "error", err)
	}
}

func (a *Adapter) handleLine(ctx context.Context, c *adapters.Connection, w io.Writer, line string) {
	result, err := a.dispatcher.Dispatch(ctx, c.SessionID, c.UserID, line)
	if err != nil {
		a.IncErrors()
		fmt.Fprintf(w, "error: %s\n", err.Error())
		return
	}
	out, jerr := json.Marshal(result)
	if jerr != nil {
		a.IncErrors()
		fmt.Fprintf(w, "error: %s\n", jerr.Error())
		return
	}
	a.IncMessagesOut()
	w.Write(out)
	fmt.Fprint(w, "\n")
}

// SendMessage writes msg to a single connection's socket.
func (a *Adapter) SendMessage(connectionID string, msg any) error {
	v, ok := a.writers.Load(connectionID)
	if !ok {
		return fmt.Errorf("text adapter: unknown connection %q", connectionID)
	}
	w := v.(io.Writer)
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(out, '\n')); err != nil {
		return err
	}
	a.IncMessagesOut()
	return nil
}

// BroadcastMessage writes msg to every connected socket.
func (a *Adapter) BroadcastMessage(msg any) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	out = append(out, '\n')
	for _, id := range a.conns.IDs() {
		if v, ok := a.writers.Load(id); ok {
			if _, werr := v.(io.Writer).Write(out); werr == nil {
				a.IncMessagesOut()
			}
		}
	}
	return nil
}

// Stats returns a snapshot of the adapter's traffic counters.
func (a *Adapter) Stats() adapters.Stats { return a.Snapshot() }

// REPL reads commands from r, submits each to the dispatcher, and writes
// the prompt/response to w (spec.md §4.9 "an interactive REPL").
func REPL(ctx context.Context, dispatcher adapters.Dispatcher, r io.Reader, w io.Writer, sessionID, userID string) error {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		result, err := dispatcher.Dispatch(ctx, sessionID, userID, line)
		if err != nil {
			fmt.Fprintf(w, "error: %s\n", err.Error())
			continue
		}
		out, jerr := json.Marshal(result)
		if jerr != nil {
			fmt.Fprintf(w, "error: %s\n", jerr.Error())
			continue
		}
		w.Write(out)
		fmt.Fprint(w, "\n")
	}
}

var _ adapters.Adapter = (*Adapter)(nil)
