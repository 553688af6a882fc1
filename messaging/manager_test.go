package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	mu      sync.Mutex
	delivered []string
	failUntil int
	calls     int
}

func (p *recordingProvider) Deliver(ctx context.Context, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failUntil {
		return errors.New("simulated failure")
	}
	p.delivered = append(p.delivered, msg.ID)
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.New()
	require.NoError(t, cfg.Set("message_interval", 10*time.Millisecond, false))
	return New(cfg)
}

func TestManagerEnqueueUnknownChannelFails(t *testing.T) {
	m := newTestManager(t)
	err := m.Enqueue(&Message{Channel: "missing", Priority: PriorityNormal, RetryStrategy: RetryFixed, MaxRetries: 3})
	require.Error(t, err)
}

func TestManagerStoppedRejectsEnqueue(t *testing.T) {
	m := newTestManager(t)
	m.RegisterChannel("notify", &recordingProvider{})
	err := m.Enqueue(&Message{Channel: "notify", Priority: PriorityNormal, RetryStrategy: RetryFixed, MaxRetries: 3})
	require.Error(t, err)
}

func TestManagerDeliversEnqueuedMessage(t *testing.T) {
	m := newTestManager(t)
	provider := &recordingProvider{}
	m.RegisterChannel("notify", provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.NoError(t, m.Enqueue(&Message{Channel: "notify", Priority: PriorityNormal, RetryStrategy: RetryImmediate, MaxRetries: 3}))

	require.Eventually(t, func() bool {
		stats := m.Statistics()
		return stats.Successful == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManagerRetriesThenExhausts(t *testing.T) {
	m := newTestManager(t)
	provider := &recordingProvider{failUntil: 100}
	m.RegisterChannel("notify", provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.NoError(t, m.Enqueue(&Message{Channel: "notify", Priority: PriorityNormal, RetryStrategy: RetryImmediate, MaxRetries: 2}))

	require.Eventually(t, func() bool {
		stats := m.Statistics()
		return stats.PerChannel["notify"].Failed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManagerPauseSuspendsDispatch(t *testing.T) {
	m := newTestManager(t)
	provider := &recordingProvider{}
	m.RegisterChannel("notify", provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()
	m.Pause()

	require.NoError(t, m.Enqueue(&Message{Channel: "notify", Priority: PriorityNormal, RetryStrategy: RetryImmediate, MaxRetries: 3}))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, provider.calls)

	m.Resume()
	require.Eventually(t, func() bool {
		return m.Statistics().Successful == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManagerMessageHistoryRecorded(t *testing.T) {
	m := newTestManager(t)
	provider := &recordingProvider{}
	m.RegisterChannel("notify", provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	msg := &Message{Channel: "notify", Priority: PriorityNormal, RetryStrategy: RetryImmediate, MaxRetries: 3}
	require.NoError(t, m.Enqueue(msg))

	require.Eventually(t, func() bool {
		_, ok := m.MessageHistory(msg.ID)
		return ok
	}, time.Second, 10*time.Millisecond)

	attempts, ok := m.MessageHistory(msg.ID)
	require.True(t, ok)
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].Success)
}
