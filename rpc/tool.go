// Package rpc implements the tool registry and the server/client runtime
// shared by every service in the system (spec.md §4.2). A Server holds a
// name-keyed map of Tool descriptors; a Client holds a pending-requests map
// awaiting responses keyed by envelope id. Both are transport-agnostic: they
// operate over any transport.Conn, and Server additionally implements
// transport.Dispatcher for the stateless HTTP carrier.
package rpc

import (
	"context"
	"encoding/json"
)

// Handler executes a tool call. params is the raw JSON params object from
// the request envelope, already validated against the tool's input schema.
// A returned error is wrapped as a handler_error response by the Server;
// handlers should not construct envelope.Error themselves.
type Handler func(ctx context.Context, params json.RawMessage) (result any, err error)

// Tool is an immutable, named, schema-described, remotely-callable handler
// (spec.md §3 "Tool descriptor"). Tools are immutable after registration.
type Tool struct {
	// Name is the tool name used as the envelope Method (e.g.
	// "register_service").
	Name string
	// Description is a human-readable summary shown to callers/UIs.
	Description string
	// InputSchema is a JSON-Schema object (spec.md §9 subset: type, enum,
	// min, max, required, default). May be nil to accept any params.
	InputSchema json.RawMessage
	// Handler executes the tool call.
	Handler Handler

	compiled *compiledSchema
}
