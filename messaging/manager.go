package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// Provider delivers a message's payload on behalf of a channel (an MQTT
// publish, a push-notification call, a webhook POST, ...).
type Provider interface {
	Deliver(ctx context.Context, msg *Message) error
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, msg *Message) error

func (f ProviderFunc) Deliver(ctx context.Context, msg *Message) error { return f(ctx, msg) }

type channelState struct {
	queue    *channelQueue
	provider Provider
	breaker  *gobreaker.CircuitBreaker[any]
	stats    *channelStats
}

// Manager is the message queue manager (spec.md §4.7): one priority FIFO
// queue per channel, a periodic processing loop dispatching due messages
// through a circuit-breaker-wrapped provider, and incremental statistics.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	capacity int

	status      Status
	statusMu    sync.Mutex
	processingInterval time.Duration
	batchSize          int

	historyMu sync.Mutex
	history   map[string]*Message
	historyID []string // insertion order, for eviction

	logger telemetry.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// maxHistoryEntries bounds how many dispatched messages (delivered, awaiting
// retry, or exhausted) the manager retains for get_message_history lookups.
const maxHistoryEntries = 1000

// Option configures a Manager at construction.
type Option func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithCapacity overrides the per-channel queue capacity.
func WithCapacity(n int) Option { return func(m *Manager) { m.capacity = n } }

// New constructs a Manager in the stopped state; call Start to begin
// processing.
func New(cfg *config.Store, opts ...Option) *Manager {
	m := &Manager{
		channels:           make(map[string]*channelState),
		capacity:           config.DefaultMaxQueueSize,
		status:             StatusStopped,
		processingInterval: cfg.Duration("message_interval", config.DefaultMessageInterval),
		batchSize:          cfg.Int("message_batch_size", config.DefaultMessageBatchSize),
		history:            make(map[string]*Message),
		logger:             telemetry.NewNoopLogger(),
		stopCh:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterChannel binds a delivery Provider to a channel name, wrapping it
// in a dedicated circuit breaker so a failing downstream stops absorbing
// retry traffic for that channel only.
func (m *Manager) RegisterChannel(name string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.channels[name]; exists {
		return
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	m.channels[name] = &channelState{
		queue:    newChannelQueue(m.capacity),
		provider: provider,
		breaker:  cb,
		stats:    newChannelStats(),
	}
}

func (m *Manager) channel(name string) (*channelState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.channels[name]
	return cs, ok
}

// Enqueue places msg on its channel's queue, rejecting it when the manager
// is stopped or the channel is at capacity.
func (m *Manager) Enqueue(msg *Message) error {
	m.statusMu.Lock()
	status := m.status
	m.statusMu.Unlock()
	if status == StatusStopped {
		return &envelope.Error{Code: envelope.ErrServiceUnavail, Message: "message manager is stopped"}
	}

	cs, ok := m.channel(msg.Channel)
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: "unknown channel " + msg.Channel}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.NextRetryAt = msg.CreatedAt
	if err := cs.queue.Enqueue(msg); err != nil {
		return err
	}
	cs.stats.recordEnqueue()
	return nil
}

// Start begins the processing loop. It is a no-op once already running.
func (m *Manager) Start(ctx context.Context) {
	m.statusMu.Lock()
	if m.status == StatusActive {
		m.statusMu.Unlock()
		return
	}
	m.status = StatusActive
	m.statusMu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop halts the processing loop and rejects further enqueues.
func (m *Manager) Stop() {
	m.statusMu.Lock()
	m.status = StatusStopped
	m.statusMu.Unlock()
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Pause suspends dispatch while still accepting enqueues.
func (m *Manager) Pause() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if m.status == StatusActive {
		m.status = StatusPaused
	}
}

// Resume continues dispatch after a Pause.
func (m *Manager) Resume() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if m.status == StatusPaused {
		m.status = StatusActive
	}
}

// Status reports the manager's current run state.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.processingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.statusMu.Lock()
	status := m.status
	m.statusMu.Unlock()
	if status != StatusActive {
		return
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.channels))
	states := make([]*channelState, 0, len(m.channels))
	for name, cs := range m.channels {
		names = append(names, name)
		states = append(states, cs)
	}
	m.mu.RUnlock()

	now := time.Now()
	for i, cs := range states {
		due := cs.queue.DueBatch(m.batchSize, func(msg *Message) bool { return !msg.NextRetryAt.After(now) })
		for _, msg := range due {
			m.dispatch(ctx, names[i], cs, msg)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, channel string, cs *channelState, msg *Message) {
	start := time.Now()
	_, err := cs.breaker.Execute(func() (any, error) {
		return nil, cs.provider.Deliver(ctx, msg)
	})
	elapsed := time.Since(start)

	attempt := DeliveryAttempt{
		AttemptID:    uuid.NewString(),
		Timestamp:    start,
		Success:      err == nil,
		ResponseTime: elapsed,
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	msg.recordAttempt(attempt)
	cs.stats.recordAttempt(err == nil, elapsed)
	m.recordHistory(msg)

	if err == nil {
		m.logger.Debug(ctx, "message delivered", "channel", channel, "message_id", msg.ID)
		return
	}

	// Matches message_queue_manager.py: retry_count increments before the
	// max_retries comparison, so a message gets max_retries total attempts,
	// not an initial attempt plus max_retries retries.
	msg.RetryCount++
	if msg.RetryCount >= msg.MaxRetries {
		m.logger.Warn(ctx, "message exhausted retries", "channel", channel, "message_id", msg.ID, "retries", msg.RetryCount)
		cs.stats.recordFailed()
		return
	}

	msg.NextRetryAt = time.Now().Add(msg.nextDelay(msg.RetryCount - 1))
	cs.stats.recordRetry()
	cs.queue.Requeue(msg)
}

func (m *Manager) recordHistory(msg *Message) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	if _, exists := m.history[msg.ID]; !exists {
		m.historyID = append(m.historyID, msg.ID)
		if len(m.historyID) > maxHistoryEntries {
			oldest := m.historyID[0]
			m.historyID = m.historyID[1:]
			delete(m.history, oldest)
		}
	}
	m.history[msg.ID] = msg
}

// MessageHistory returns the delivery-attempt history for a message id, if
// the manager has seen a dispatch attempt for it.
func (m *Manager) MessageHistory(id string) ([]DeliveryAttempt, bool) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	msg, ok := m.history[id]
	if !ok {
		return nil, false
	}
	return msg.Attempts(), true
}

// QueueStatus summarizes one channel's queue depth and run state.
type QueueStatus struct {
	Channel string `json:"channel"`
	Pending int    `json:"pending"`
	Status  Status `json:"status"`
}

// QueueStatus reports the depth of every registered channel.
func (m *Manager) QueueStatus() []QueueStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.Status()
	out := make([]QueueStatus, 0, len(m.channels))
	for name, cs := range m.channels {
		out = append(out, QueueStatus{Channel: name, Pending: cs.queue.Len(), Status: status})
	}
	return out
}

// ClearChannel drops every queued message on a channel.
func (m *Manager) ClearChannel(name string) error {
	cs, ok := m.channel(name)
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: "unknown channel " + name}
	}
	cs.queue.Clear()
	return nil
}

// Statistics aggregates delivery statistics across every registered
// channel (spec.md §4.7 "get_statistics").
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out Statistics
	out.PerChannel = make(map[string]ChannelStats, len(m.channels))
	for name, cs := range m.channels {
		snap := cs.stats.snapshot()
		out.PerChannel[name] = snap
		out.Total += snap.Total
		out.Successful += snap.Successful
		out.Failed += snap.Failed
		out.Retries += snap.Retries
		out.Pending += cs.queue.Len()
	}
	return out
}
