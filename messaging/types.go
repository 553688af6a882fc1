// Package messaging implements the message queue manager (spec.md §4.7):
// per-channel priority FIFO queues, a processing loop that dispatches
// through a pluggable provider per channel with retry/backoff, bounded
// delivery-attempt history, and incremental statistics. A
// github.com/sony/gobreaker circuit breaker wraps each channel's provider
// so a failing downstream stops absorbing retry traffic.
package messaging

import "time"

// Priority orders message dispatch within a channel: urgent to the queue
// head, high after the urgent block, normal/low to the tail (spec.md §4.7).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Status is the queue manager's run state (spec.md §4.7 "Status control").
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusStopped Status = "stopped"
)

// RetryStrategy names a retry/backoff policy.
type RetryStrategy string

const (
	RetryImmediate     RetryStrategy = "immediate"
	RetryExpBackoff    RetryStrategy = "exp_backoff"
	RetryLinearBackoff RetryStrategy = "linear_backoff"
	RetryFixed         RetryStrategy = "fixed"
	RetryCustom        RetryStrategy = "custom"
)

// DeliveryAttempt records one dispatch attempt for a message (spec.md
// §4.7).
type DeliveryAttempt struct {
	AttemptID    string        `json:"attempt_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
}

const maxAttemptHistory = 20

// Message is a queued payload awaiting delivery on a channel.
type Message struct {
	ID       string
	Channel  string
	Priority Priority
	Payload  any

	RetryStrategy  RetryStrategy
	RetryIntervals []time.Duration // used when RetryStrategy == RetryCustom
	MaxRetries     int

	RetryCount  int
	NextRetryAt time.Time
	CreatedAt   time.Time

	attempts []DeliveryAttempt

	seq uint64
}

// Attempts returns a copy of the bounded delivery-attempt history.
func (m *Message) Attempts() []DeliveryAttempt {
	out := make([]DeliveryAttempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

func (m *Message) recordAttempt(a DeliveryAttempt) {
	m.attempts = append(m.attempts, a)
	if len(m.attempts) > maxAttemptHistory {
		m.attempts = m.attempts[len(m.attempts)-maxAttemptHistory:]
	}
}

// nextDelay computes the delay after retry k (0-based) per spec.md §4.7's
// strategy table.
func (m *Message) nextDelay(k int) time.Duration {
	switch m.RetryStrategy {
	case RetryImmediate:
		return 0
	case RetryExpBackoff:
		if k > 9 { // 2^9 already exceeds the 300s cap
			k = 9
		}
		d := time.Duration(1) << uint(k)
		if d > 300 {
			d = 300
		}
		return d * time.Second
	case RetryLinearBackoff:
		return time.Duration(30*k) * time.Second
	case RetryFixed:
		return 60 * time.Second
	case RetryCustom:
		if len(m.RetryIntervals) == 0 {
			return 60 * time.Second
		}
		idx := k
		if idx >= len(m.RetryIntervals) {
			idx = len(m.RetryIntervals) - 1
		}
		return m.RetryIntervals[idx]
	default:
		return 60 * time.Second
	}
}
