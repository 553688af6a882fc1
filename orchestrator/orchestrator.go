package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/intent"
	"github.com/sparesparrow/ai-servis/pipeline"
	"github.com/sparesparrow/ai-servis/rpc"
	"github.com/sparesparrow/ai-servis/serviceregistry"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// ClientPool resolves a live rpc.Client for a registered service endpoint.
// Implemented by the process wiring the orchestrator into a running system
// (for example a pool keyed by host:port).
type ClientPool interface {
	Client(ctx context.Context, svc serviceregistry.Service) (*rpc.Client, error)
}

// Orchestrator routes classified commands to the service/tool named by
// their intent schema, enforcing the auth boundary first (spec.md §4.6).
type Orchestrator struct {
	sessions *SessionManager
	registry *serviceregistry.Registry
	clients  ClientPool
	auth     Authenticator
	logger   telemetry.Logger

	toolTimeout time.Duration
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithAuthenticator overrides the default NoopAuthenticator. A nil
// Authenticator keeps the default.
func WithAuthenticator(a Authenticator) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.auth = a
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// New constructs an Orchestrator.
func New(cfg *config.Store, sessions *SessionManager, registry *serviceregistry.Registry, clients ClientPool, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions:    sessions,
		registry:    registry,
		clients:     clients,
		auth:        NoopAuthenticator{},
		logger:      telemetry.NewNoopLogger(),
		toolTimeout: cfg.Duration("tool_call_timeout", config.DefaultToolCallTimeout),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatch implements pipeline.Dispatcher: it resolves schema's target
// service in the registry and calls its tool via rpc (spec.md §4.5 step 6,
// §4.6 "Routing table").
func (o *Orchestrator) Dispatch(ctx context.Context, schema intent.Schema, params map[string]any) (any, error) {
	if schema.Service == "" || schema.Tool == "" {
		return nil, &envelope.Error{Code: envelope.ErrNotFound, Message: fmt.Sprintf("intent %q has no routing entry", schema.Intent)}
	}
	svc, ok := o.registry.Get(schema.Service)
	if !ok {
		return nil, &envelope.Error{Code: envelope.ErrServiceUnavail, Message: fmt.Sprintf("service %q is not registered", schema.Service)}
	}

	client, err := o.clients.Client(ctx, svc)
	if err != nil {
		return nil, &envelope.Error{Code: envelope.ErrServiceUnavail, Message: err.Error()}
	}

	raw, err := client.Call(ctx, schema.Tool, params, o.toolTimeout)
	if err != nil {
		return nil, err
	}
	var out any
	if len(raw) > 0 {
		if jerr := json.Unmarshal(raw, &out); jerr != nil {
			return nil, &envelope.Error{Code: envelope.ErrProcessingError, Message: jerr.Error()}
		}
	}
	return out, nil
}

// ProcessCommandParams is the process_command tool's parameter set
// (spec.md §6 "Tool surface").
type ProcessCommandParams struct {
	Text          string         `json:"text"`
	SessionID     string         `json:"session_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	AuthToken     string         `json:"auth_token,omitempty"`
	InterfaceType string         `json:"interface_type,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Priority      string         `json:"priority,omitempty"`
}

func priorityFromString(s string) pipeline.Priority {
	switch s {
	case "urgent":
		return pipeline.PriorityUrgent
	case "high":
		return pipeline.PriorityHigh
	case "low":
		return pipeline.PriorityLow
	default:
		return pipeline.PriorityNormal
	}
}

// ProcessCommand authenticates the caller, resolves/creates the session,
// and submits the text to the pipeline, returning the queued acknowledgment
// (spec.md §4.6, §6).
func (o *Orchestrator) ProcessCommand(ctx context.Context, p *pipeline.Pipeline, classifier *intent.Registry, params ProcessCommandParams) (pipeline.CommandResult, error) {
	var userInfo map[string]any
	if params.AuthToken != "" {
		info, ok, err := o.auth.VerifyToken(ctx, params.AuthToken)
		if err != nil {
			return pipeline.CommandResult{}, &envelope.Error{Code: envelope.ErrUnauthorized, Message: err.Error()}
		}
		if !ok {
			return pipeline.CommandResult{}, &envelope.Error{Code: envelope.ErrUnauthorized, Message: "invalid token"}
		}
		userInfo = info
	}

	session := o.sessions.Ensure(params.SessionID, params.UserID, params.InterfaceType)

	if params.AuthToken != "" {
		classification := classifier.Classify(params.Text)
		if schema, ok := classifier.Schema(classification.Intent); ok && schema.Service != "" {
			allowed, err := o.auth.CheckPermission(ctx, params.AuthToken, "service:"+schema.Service)
			if err != nil {
				return pipeline.CommandResult{}, &envelope.Error{Code: envelope.ErrUnauthorized, Message: err.Error()}
			}
			if !allowed {
				return pipeline.CommandResult{}, &envelope.Error{Code: envelope.ErrUnauthorized, Message: "permission denied for " + schema.Service}
			}
		}
	}

	cmd := pipeline.Command{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		UserID:    params.UserID,
		UserInfo:  userInfo,
		Text:      params.Text,
		Priority:  priorityFromString(params.Priority),
	}
	return p.Submit(cmd)
}
