package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/rpc"
)

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			var zero T
			return zero, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
		}
	}
	return v, nil
}

const (
	enqueueSchema = `{
		"type": "object",
		"required": ["channel", "payload"],
		"properties": {
			"channel": {"type": "string"},
			"payload": {},
			"priority": {"type": "string", "enum": ["urgent", "high", "normal", "low"]},
			"retry_strategy": {"type": "string", "enum": ["immediate", "exp_backoff", "linear_backoff", "fixed", "custom"]},
			"retry_intervals_seconds": {"type": "array", "items": {"type": "integer"}},
			"max_retries": {"type": "integer"}
		}
	}`
	channelSchema = `{
		"type": "object",
		"required": ["channel"],
		"properties": {"channel": {"type": "string"}}
	}`
	messageIDSchema = `{
		"type": "object",
		"required": ["message_id"],
		"properties": {"message_id": {"type": "string"}}
	}`
)

type enqueueParams struct {
	Channel               string `json:"channel"`
	Payload               any    `json:"payload"`
	Priority              string `json:"priority"`
	RetryStrategy         string `json:"retry_strategy"`
	RetryIntervalsSeconds []int  `json:"retry_intervals_seconds"`
	MaxRetries            int    `json:"max_retries"`
}

func priorityFromString(s string) Priority {
	switch s {
	case "urgent":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Tools returns the rpc.Tool descriptors for the message queue manager
// (spec.md §4.7 "Tool surface").
func Tools(m *Manager) []rpc.Tool {
	return []rpc.Tool{
		{
			Name:        "enqueue_message",
			Description: "place a message on a channel's priority queue",
			InputSchema: json.RawMessage(enqueueSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[enqueueParams](raw)
				if err != nil {
					return nil, err
				}
				intervals := make([]time.Duration, len(p.RetryIntervalsSeconds))
				for i, s := range p.RetryIntervalsSeconds {
					intervals[i] = time.Duration(s) * time.Second
				}
				maxRetries := p.MaxRetries
				if maxRetries == 0 {
					maxRetries = 3
				}
				msg := &Message{
					Channel:        p.Channel,
					Priority:       priorityFromString(p.Priority),
					Payload:        p.Payload,
					RetryStrategy:  RetryStrategy(p.RetryStrategy),
					RetryIntervals: intervals,
					MaxRetries:     maxRetries,
				}
				if msg.RetryStrategy == "" {
					msg.RetryStrategy = RetryFixed
				}
				if err := m.Enqueue(msg); err != nil {
					return nil, err
				}
				return map[string]string{"message_id": msg.ID}, nil
			},
		},
		{
			Name:        "pause_queue",
			Description: "suspend dispatch while still accepting enqueues",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				m.Pause()
				return map[string]string{"status": string(m.Status())}, nil
			},
		},
		{
			Name:        "resume_queue",
			Description: "resume dispatch after a pause",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				m.Resume()
				return map[string]string{"status": string(m.Status())}, nil
			},
		},
		{
			Name:        "clear_queue",
			Description: "drop every queued message on a channel",
			InputSchema: json.RawMessage(channelSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					Channel string `json:"channel"`
				}](raw)
				if err != nil {
					return nil, err
				}
				if err := m.ClearChannel(p.Channel); err != nil {
					return nil, err
				}
				return map[string]bool{"cleared": true}, nil
			},
		},
		{
			Name:        "get_queue_status",
			Description: "report the pending depth of every channel",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				return m.QueueStatus(), nil
			},
		},
		{
			Name:        "get_statistics",
			Description: "report delivery statistics across all channels",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				return m.Statistics(), nil
			},
		},
		{
			Name:        "get_message_history",
			Description: "report the delivery-attempt history for a message",
			InputSchema: json.RawMessage(messageIDSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					MessageID string `json:"message_id"`
				}](raw)
				if err != nil {
					return nil, err
				}
				attempts, ok := m.MessageHistory(p.MessageID)
				if !ok {
					return nil, &envelope.Error{Code: envelope.ErrNotFound, Message: "no history for message " + p.MessageID}
				}
				return attempts, nil
			},
		},
	}
}
