package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/intent"
	"github.com/sparesparrow/ai-servis/pipeline"
	"github.com/sparesparrow/ai-servis/rpc"
)

const (
	processCommandSchema = `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string"},
			"session_id": {"type": "string"},
			"user_id": {"type": "string"},
			"auth_token": {"type": "string"},
			"interface_type": {"type": "string"},
			"priority": {"type": "string", "enum": ["urgent", "high", "normal", "low"]},
			"context": {"type": "object"}
		}
	}`
	createSessionSchema = `{
		"type": "object",
		"properties": {
			"user_id": {"type": "string"},
			"interface_type": {"type": "string"}
		}
	}`
	analyzeIntentSchema = `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string"}}
	}`
)

// Tools returns the rpc.Tool descriptors for process_command, create_session,
// analyze_intent, and route_command (spec.md §4.6, §6).
func Tools(o *Orchestrator, p *pipeline.Pipeline, classifier *intent.Registry) []rpc.Tool {
	return []rpc.Tool{
		{
			Name:        "process_command",
			Description: "classify, route, and submit a natural-language command",
			InputSchema: json.RawMessage(processCommandSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var params ProcessCommandParams
				if err := json.Unmarshal(raw, &params); err != nil {
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
				}
				return o.ProcessCommand(ctx, p, classifier, params)
			},
		},
		{
			Name:        "create_session",
			Description: "create a fresh session for a user/interface pair",
			InputSchema: json.RawMessage(createSessionSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var params struct {
					UserID        string `json:"user_id"`
					InterfaceType string `json:"interface_type"`
				}
				if len(raw) > 0 {
					if err := json.Unmarshal(raw, &params); err != nil {
						return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
					}
				}
				s := o.sessions.Create(params.UserID, params.InterfaceType)
				return map[string]string{"session_id": s.ID}, nil
			},
		},
		{
			Name:        "analyze_intent",
			Description: "classify text without submitting a command",
			InputSchema: json.RawMessage(analyzeIntentSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var params struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(raw, &params); err != nil {
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
				}
				classification := classifier.Classify(params.Text)
				if classification.LowConfidence {
					return nil, &envelope.Error{Code: envelope.ErrLowConfidence, Message: fmt.Sprintf("low confidence classification for intent %q", classification.Intent)}
				}
				return classification, nil
			},
		},
		{
			Name:        "route_command",
			Description: "resolve the service/tool that handles an intent",
			InputSchema: json.RawMessage(analyzeIntentSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var params struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(raw, &params); err != nil {
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
				}
				classification := classifier.Classify(params.Text)
				schema, ok := classifier.Schema(classification.Intent)
				if !ok || schema.Service == "" {
					return nil, &envelope.Error{Code: envelope.ErrNotFound, Message: fmt.Sprintf("no route for intent %q", classification.Intent)}
				}
				if _, registered := o.registry.Get(schema.Service); !registered {
					return nil, &envelope.Error{Code: envelope.ErrServiceUnavail, Message: fmt.Sprintf("service %q is not registered", schema.Service)}
				}
				return map[string]string{"service": schema.Service, "tool": schema.Tool}, nil
			},
		},
	}
}
