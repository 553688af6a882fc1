package serviceregistry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/rpc"
)

const (
	registerSchema = `{
		"type": "object",
		"required": ["name", "host", "port", "capabilities"],
		"properties": {
			"name": {"type": "string"},
			"host": {"type": "string"},
			"port": {"type": "integer"},
			"capabilities": {"type": "array", "items": {"type": "string"}},
			"health_endpoint": {"type": "string"},
			"metadata": {"type": "object"}
		}
	}`
	nameOnlySchema = `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`
	discoverSchema = `{
		"type": "object",
		"properties": {"capability": {"type": "string"}}
	}`
	configSchema = `{
		"type": "object",
		"required": ["action"],
		"properties": {
			"action": {"type": "string", "enum": ["get", "set", "reset"]},
			"key": {"type": "string"},
			"value": {}
		}
	}`
)

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
	}
	return out, nil
}

// Tools returns the rpc.Tool descriptors for every service-registry
// operation (spec.md §4.3), ready to pass to rpc.Server.Register.
func Tools(registry *Registry, cfg *config.Store) []rpc.Tool {
	return []rpc.Tool{
		{
			Name:        "register_service",
			Description: "register a service with its capabilities and endpoint",
			InputSchema: json.RawMessage(registerSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[RegisterParams](raw)
				if err != nil {
					return nil, err
				}
				return registry.Register(ctx, p)
			},
		},
		{
			Name:        "service_heartbeat",
			Description: "refresh a registered service's last-heartbeat timestamp",
			InputSchema: json.RawMessage(nameOnlySchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var p struct {
					Name string `json:"name"`
				}
				if err := json.Unmarshal(raw, &p); err != nil {
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
				}
				if err := registry.Heartbeat(ctx, p.Name); err != nil {
					return nil, err
				}
				return map[string]string{"name": p.Name, "status": "healthy"}, nil
			},
		},
		{
			Name:        "unregister_service",
			Description: "remove a registered service",
			InputSchema: json.RawMessage(nameOnlySchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var p struct {
					Name string `json:"name"`
				}
				if err := json.Unmarshal(raw, &p); err != nil {
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
				}
				if err := registry.Unregister(ctx, p.Name); err != nil {
					return nil, err
				}
				return map[string]string{"name": p.Name}, nil
			},
		},
		{
			Name:        "discover_services",
			Description: "list registered services, optionally filtered by capability",
			InputSchema: json.RawMessage(discoverSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var p struct {
					Capability string `json:"capability"`
				}
				if len(raw) > 0 {
					if err := json.Unmarshal(raw, &p); err != nil {
						return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
					}
				}
				return map[string]any{"services": registry.Discover(p.Capability)}, nil
			},
		},
		{
			Name:        "check_service_health",
			Description: "re-derive each service's health status and return an aggregate",
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				return registry.CheckHealth(), nil
			},
		},
		{
			Name:        "restart_service",
			Description: "atomically unregister and re-register a service, preserving unspecified fields",
			InputSchema: json.RawMessage(nameOnlySchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[RegisterParams](raw)
				if err != nil {
					return nil, err
				}
				return registry.Restart(ctx, p)
			},
		},
		{
			Name:        "manage_configuration",
			Description: "get, set, or reset a runtime-tunable configuration key",
			InputSchema: json.RawMessage(configSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var p struct {
					Action string `json:"action"`
					Key    string `json:"key"`
					Value  any    `json:"value"`
				}
				if err := json.Unmarshal(raw, &p); err != nil {
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
				}
				switch p.Action {
				case "get":
					if p.Key == "" {
						return cfg.Snapshot(), nil
					}
					v, ok := cfg.Get(p.Key)
					if !ok {
						return nil, &envelope.Error{Code: envelope.ErrUnknownKey, Message: fmt.Sprintf("unknown key %q", p.Key)}
					}
					return map[string]any{p.Key: v}, nil
				case "set":
					if err := cfg.Set(p.Key, p.Value, true); err != nil {
						return nil, &envelope.Error{Code: envelope.ErrUnknownKey, Message: err.Error()}
					}
					return map[string]any{p.Key: p.Value}, nil
				case "reset":
					if err := cfg.Reset(p.Key); err != nil {
						return nil, &envelope.Error{Code: envelope.ErrUnknownKey, Message: err.Error()}
					}
					return map[string]string{"reset": p.Key}, nil
				default:
					return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: fmt.Sprintf("unknown action %q", p.Action)}
				}
			},
		},
	}
}
