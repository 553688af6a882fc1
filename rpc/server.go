package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/telemetry"
	"github.com/sparesparrow/ai-servis/transport"
)

// Server holds the map of registered tools for one process and dispatches
// incoming request envelopes to the matching handler (spec.md §4.2).
type Server struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	concurrency int
	sem         chan struct{}

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithConcurrency sets the maximum number of handler invocations running at
// once across all connections. Defaults to 64 per spec.md §4.2.
func WithConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracer attaches a tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// NewServer constructs an empty Server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		tools:       make(map[string]*Tool),
		concurrency: 64,
		logger:      telemetry.NewNoopLogger(),
		tracer:      telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = make(chan struct{}, s.concurrency)
	return s
}

// Register adds a tool to the registry. Names are unique within a server;
// registering a duplicate name fails with ErrDuplicateName and there is no
// unregister during normal operation (spec.md §3, §4.2).
func (s *Server) Register(t Tool) error {
	if t.Name == "" {
		return &envelope.Error{Code: envelope.ErrInvalidParams, Message: "tool name is empty"}
	}
	compiled, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return err
	}
	t.compiled = compiled

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[t.Name]; exists {
		return &envelope.Error{Code: envelope.ErrDuplicateName, Message: fmt.Sprintf("tool %q already registered", t.Name)}
	}
	s.tools[t.Name] = &t
	return nil
}

// Lookup returns the registered tool by name.
func (s *Server) Lookup(name string) (*Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// Names returns the currently registered tool names.
func (s *Server) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tools))
	for n := range s.tools {
		out = append(out, n)
	}
	return out
}

// Dispatch handles a single request envelope synchronously, acquiring a slot
// from the concurrency semaphore before invoking the handler. Used directly
// by the stateless HTTP carrier (transport.Handler) and internally by Serve.
func (s *Server) Dispatch(ctx context.Context, req envelope.Envelope) envelope.Envelope {
	if !req.IsRequest() {
		// Notifications reaching Dispatch (e.g. over HTTP) are acknowledged
		// with an empty response envelope carrying no id.
		s.invokeNotification(ctx, req)
		return envelope.Envelope{Type: envelope.TypeResponse}
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return envelope.NewErrorResponse(req.ID, envelope.ErrTimeout, ctx.Err().Error())
	}
	defer func() { <-s.sem }()
	return s.invoke(ctx, req)
}

// Serve reads envelopes from conn until it closes, dispatching requests
// through a per-connection FIFO queue bounded by the server's concurrency
// cap and handling notifications inline. It returns once Recv fails
// (including on a clean peer close).
func (s *Server) Serve(ctx context.Context, conn transport.Conn) error {
	type job struct{ req envelope.Envelope }
	queue := make(chan job, 256)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for j := range queue {
			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(req envelope.Envelope) {
				defer func() { <-s.sem }()
				resp := s.invoke(ctx, req)
				if err := conn.Send(resp); err != nil {
					s.logger.Warn(ctx, "rpc: failed to send response", "id", req.ID, "error", err.Error())
				}
			}(j.req)
		}
	}()

	var recvErr error
	for {
		env, err := conn.Recv()
		if err != nil {
			recvErr = err
			break
		}
		switch {
		case env.IsNotification():
			go s.invokeNotification(ctx, env)
		case env.IsRequest():
			queue <- job{req: env}
		}
	}
	close(queue)
	<-done
	return recvErr
}

// invoke validates params, runs the handler, and builds the response
// envelope, recovering from handler panics as a processing_error.
func (s *Server) invoke(ctx context.Context, req envelope.Envelope) (resp envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			resp = envelope.NewErrorResponse(req.ID, envelope.ErrProcessingError, fmt.Sprintf("panic: %v", r))
		}
	}()

	tool, ok := s.Lookup(req.Method)
	if !ok {
		return envelope.NewErrorResponse(req.ID, envelope.ErrMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
	if err := tool.compiled.Validate(req.Params); err != nil {
		return envelope.NewErrorResponse(req.ID, envelope.ErrInvalidParams, err.Error())
	}
	ctx, span := s.tracer.Start(ctx, "rpc.invoke")
	defer span.End()

	result, err := tool.Handler(ctx, req.Params)
	if err != nil {
		span.RecordError(err)
		return envelope.NewErrorResponse(req.ID, envelope.ErrHandlerError, err.Error())
	}
	out, merr := envelope.NewResult(req.ID, result)
	if merr != nil {
		return envelope.NewErrorResponse(req.ID, envelope.ErrProcessingError, merr.Error())
	}
	return out
}

func (s *Server) invokeNotification(ctx context.Context, env envelope.Envelope) {
	tool, ok := s.Lookup(env.Method)
	if !ok {
		s.logger.Debug(ctx, "rpc: notification for unknown method", "method", env.Method)
		return
	}
	if err := tool.compiled.Validate(env.Params); err != nil {
		s.logger.Warn(ctx, "rpc: notification failed validation", "method", env.Method, "error", err.Error())
		return
	}
	if _, err := tool.Handler(ctx, env.Params); err != nil {
		s.logger.Warn(ctx, "rpc: notification handler error", "method", env.Method, "error", err.Error())
	}
}

var _ transport.Dispatcher = (*Server)(nil)
