// Package envelope defines the canonical request/response/notification/event
// message exchanged on the RPC bus (spec.md §3, §4.1, §6). Every transport in
// package transport carries the same Envelope so that a server or client
// implementation is transport-agnostic.
package envelope

import "encoding/json"

// Type enumerates the envelope kinds carried on the RPC bus.
type Type string

const (
	// TypeRequest is a caller-initiated call expecting a matching Response.
	TypeRequest Type = "request"
	// TypeResponse answers a Request with the same ID.
	TypeResponse Type = "response"
	// TypeNotification carries no ID and expects no reply.
	TypeNotification Type = "notification"
	// TypeEvent is a server-initiated, ID-less broadcast.
	TypeEvent Type = "event"
)

// ErrorCode is a canonical error string from spec.md §6.
type ErrorCode string

// Canonical error codes. These are the only error codes the RPC bus uses;
// component-specific errors must map onto one of these.
const (
	ErrMethodNotFound  ErrorCode = "method_not_found"
	ErrInvalidParams   ErrorCode = "invalid_params"
	ErrDuplicateName   ErrorCode = "duplicate_name"
	ErrNotFound        ErrorCode = "not_found"
	ErrAlreadyRegd     ErrorCode = "already_registered"
	ErrUnknownKey      ErrorCode = "unknown_key"
	ErrQueueFull       ErrorCode = "queue_full"
	ErrServiceUnavail  ErrorCode = "service_unavailable"
	ErrTransportClosed ErrorCode = "transport_closed"
	ErrTimeout         ErrorCode = "timeout"
	ErrHandlerError    ErrorCode = "handler_error"
	ErrUnauthorized    ErrorCode = "unauthorized"
	ErrValidationError ErrorCode = "validation_error"
	ErrLowConfidence   ErrorCode = "low_confidence"
	ErrProcessingError ErrorCode = "processing_error"
)

// Error is the structured error carried in Envelope.Error. It implements the
// error interface so it can be returned and wrapped like any Go error.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error renders the error as "<code>: <message>".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

// NewError constructs an *Error, the canonical way to populate
// Envelope.Error from a component handler.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Envelope is the wire message exchanged over WebSocket, HTTP, and
// stdio/line-delimited transports (spec.md §3, §6).
//
// Result and Error are mutually exclusive: a response carries exactly one of
// the two. Notifications and events carry no ID. Unknown fields are
// preserved via Extra so a forwarding component does not lose data it does
// not understand.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Type   Type            `json:"type"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`

	// Extra carries any field present on the wire that the fields above do
	// not model, so a pass-through component (bridges, adapters) round-trips
	// it byte-for-byte instead of dropping it.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields lists the JSON keys owned by the typed struct fields, used to
// split unknown fields into Extra during unmarshaling.
var knownFields = map[string]struct{}{
	"id": {}, "type": {}, "method": {}, "params": {}, "result": {}, "error": {},
}

// MarshalJSON merges the typed fields with Extra so unknown fields survive a
// decode/encode round trip unchanged.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	base, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, known := knownFields[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the typed fields and retains any unrecognized key in
// Extra.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Envelope(a)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if _, known := knownFields[k]; known {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		e.Extra = extra
	}
	return nil
}

// NewRequest builds a request envelope for method with the given id and
// JSON-encodable params.
func NewRequest(id, method string, params any) (Envelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Type: TypeRequest, Method: method, Params: raw}, nil
}

// NewResult builds a successful response envelope for the given request id.
func NewResult(id string, result any) (Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Type: TypeResponse, Result: raw}, nil
}

// NewErrorResponse builds a failed response envelope for the given request id.
func NewErrorResponse(id string, code ErrorCode, message string) Envelope {
	return Envelope{ID: id, Type: TypeResponse, Error: NewError(code, message)}
}

// NewNotification builds an ID-less notification envelope.
func NewNotification(method string, params any) (Envelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeNotification, Method: method, Params: raw}, nil
}

// NewEvent builds an ID-less, server-initiated event envelope.
func NewEvent(method string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeEvent, Method: method, Result: raw}, nil
}

// IsRequest reports whether the envelope expects a matching reply.
func (e Envelope) IsRequest() bool { return e.Type == TypeRequest && e.ID != "" }

// IsNotification reports whether the envelope carries no ID and expects no
// reply.
func (e Envelope) IsNotification() bool { return e.Type == TypeNotification }

// Ok reports whether a response envelope completed without an error.
func (e Envelope) Ok() bool { return e.Error == nil }
