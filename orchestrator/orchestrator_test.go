package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/intent"
	"github.com/sparesparrow/ai-servis/rpc"
	"github.com/sparesparrow/ai-servis/serviceregistry"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerCreateAndGet(t *testing.T) {
	m := NewSessionManager(config.New())
	s := m.Create("u1", "web")
	require.NotEmpty(t, s.ID)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	require.Equal(t, "u1", got.UserID)
}

func TestSessionManagerEvictsIdle(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Set("session_ttl", 30*time.Millisecond, false))
	m := NewSessionManager(cfg)
	s := m.Create("u1", "web")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go m.Run(ctx, 10*time.Millisecond)
	defer m.Stop()

	require.Eventually(t, func() bool {
		_, ok := m.Get(s.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestSessionManagerFollowUpState(t *testing.T) {
	m := NewSessionManager(config.New())
	s := m.Create("u1", "web")

	_, _, ok := m.LastIntent(s.ID)
	require.False(t, ok)

	m.SetLastIntent(s.ID, intent.AudioControl, map[string]any{"track": "foo"})
	i, params, ok := m.LastIntent(s.ID)
	require.True(t, ok)
	require.Equal(t, intent.AudioControl, i)
	require.Equal(t, "foo", params["track"])
}

type stubClientPool struct{}

func (stubClientPool) Client(ctx context.Context, svc serviceregistry.Service) (*rpc.Client, error) {
	return nil, &envelope.Error{Code: envelope.ErrServiceUnavail, Message: "not wired in test"}
}

func TestDispatchUnknownServiceFails(t *testing.T) {
	cfg := config.New()
	reg := serviceregistry.New(cfg)
	o := New(cfg, NewSessionManager(cfg), reg, stubClientPool{})

	schema := intent.Schema{Intent: intent.AudioControl, Service: "audio", Tool: "play"}
	_, err := o.Dispatch(context.Background(), schema, map[string]any{})
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrServiceUnavail, rpcErr.Code)
}

func TestDispatchNoRouteFails(t *testing.T) {
	cfg := config.New()
	reg := serviceregistry.New(cfg)
	o := New(cfg, NewSessionManager(cfg), reg, stubClientPool{})

	schema := intent.Schema{Intent: intent.Unknown}
	_, err := o.Dispatch(context.Background(), schema, map[string]any{})
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrNotFound, rpcErr.Code)
}
