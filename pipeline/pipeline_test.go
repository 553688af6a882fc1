package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/intent"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	result any
	err    error
	delay  time.Duration
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, schema intent.Schema, params map[string]any) (any, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.result, d.err
}

type memSessions struct {
	last map[string]intent.Intent
	params map[string]map[string]any
}

func newMemSessions() *memSessions {
	return &memSessions{last: make(map[string]intent.Intent), params: make(map[string]map[string]any)}
}

func (m *memSessions) LastIntent(sessionID string) (intent.Intent, map[string]any, bool) {
	i, ok := m.last[sessionID]
	return i, m.params[sessionID], ok
}

func (m *memSessions) SetLastIntent(sessionID string, i intent.Intent, params map[string]any) {
	m.last[sessionID] = i
	m.params[sessionID] = params
}

func newTestClassifier() *intent.Registry {
	reg := intent.New(config.New())
	reg.RegisterSchema(intent.Schema{
		Intent:   intent.AudioControl,
		Keywords: []string{"play", "music", "volume"},
		Service:  "audio", Tool: "play",
		Parameters: []intent.ParameterSchema{{Name: "track", Type: intent.TypeString}},
	})
	return reg
}

func TestPipelineSubmitEmptyTextFails(t *testing.T) {
	cfg := config.New()
	p := New(cfg, newTestClassifier(), &fakeDispatcher{})
	_, err := p.Submit(Command{ID: "x", Text: ""})
	require.Error(t, err)
}

func TestPipelineProcessesCommandSuccessfully(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Set("worker_count", 2, false))
	dispatcher := &fakeDispatcher{result: map[string]string{"status": "playing"}}
	p := New(cfg, newTestClassifier(), dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() { cancel(); p.Stop() }()

	_, err := p.Submit(Command{ID: "cmd-1", Text: "please play some music", SessionID: "s1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, ok := p.Result("cmd-1")
		return ok && r.State == StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	r, _ := p.Result("cmd-1")
	require.True(t, r.Success)
	require.Equal(t, intent.AudioControl, r.Intent)
}

func TestPipelineDispatchTimeout(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Set("command_timeout", 30*time.Millisecond, false))
	dispatcher := &fakeDispatcher{result: "ok", delay: time.Second}
	p := New(cfg, newTestClassifier(), dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() { cancel(); p.Stop() }()

	_, err := p.Submit(Command{ID: "cmd-2", Text: "play music"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, ok := p.Result("cmd-2")
		return ok && r.State == StateTimeout
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipelineMetricsRecordedOnce(t *testing.T) {
	cfg := config.New()
	dispatcher := &fakeDispatcher{result: "ok"}
	p := New(cfg, newTestClassifier(), dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() { cancel(); p.Stop() }()

	_, err := p.Submit(Command{ID: "cmd-3", Text: "play music"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.Metrics().Total() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, p.Metrics().Snapshot().Successes)
}

func TestPipelineFollowUpWithoutContextAnswersDirectly(t *testing.T) {
	cfg := config.New()
	reg := newTestClassifier()
	reg.RegisterSchema(intent.Schema{Intent: intent.FollowUp, Keywords: []string{"again"}})
	dispatcher := &fakeDispatcher{result: "ok"}
	p := New(cfg, reg, dispatcher, WithSessionState(newMemSessions()))

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() { cancel(); p.Stop() }()

	_, err := p.Submit(Command{ID: "cmd-5", Text: "do that again", SessionID: "no-history"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, ok := p.Result("cmd-5")
		return ok && r.State == StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	r, _ := p.Result("cmd-5")
	require.True(t, r.Success)
	require.Equal(t, intent.FollowUp, r.Intent)
	require.Equal(t, "I don't have context for a follow-up. Please be more specific.", r.Result)
}

func TestPipelineFollowUpWithContextReDispatchesLastIntent(t *testing.T) {
	cfg := config.New()
	reg := newTestClassifier()
	reg.RegisterSchema(intent.Schema{Intent: intent.FollowUp, Keywords: []string{"again"}})
	dispatcher := &fakeDispatcher{result: "ok"}
	sessions := newMemSessions()
	sessions.SetLastIntent("s1", intent.AudioControl, map[string]any{"track": "jazz"})
	p := New(cfg, reg, dispatcher, WithSessionState(sessions))

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() { cancel(); p.Stop() }()

	_, err := p.Submit(Command{ID: "cmd-6", Text: "play it again", SessionID: "s1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, ok := p.Result("cmd-6")
		return ok && r.State == StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	r, _ := p.Result("cmd-6")
	require.True(t, r.Success)
	require.Equal(t, intent.AudioControl, r.Intent)
	require.InDelta(t, 0.8, r.Confidence, 1e-9)
}

func TestPipelineCancelQueuedCommand(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Set("worker_count", 0, false))
	dispatcher := &fakeDispatcher{result: "ok"}
	p := New(cfg, newTestClassifier(), dispatcher)

	_, err := p.Submit(Command{ID: "cmd-4", Text: "play music"})
	require.NoError(t, err)

	require.True(t, p.Cancel("cmd-4"))
	r, ok := p.Result("cmd-4")
	require.True(t, ok)
	require.Equal(t, StateCancelled, r.State)
}
