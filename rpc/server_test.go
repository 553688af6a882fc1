package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Name: name,
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			return map[string]string{"ok": "true"}, nil
		},
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	s := NewServer()
	require.NoError(t, s.Register(echoTool("ping")))

	err := s.Register(echoTool("ping"))
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrDuplicateName, rpcErr.Code)
}

func TestDispatchMethodNotFound(t *testing.T) {
	s := NewServer()
	req, err := envelope.NewRequest("r-1", "nope", nil)
	require.NoError(t, err)

	resp := s.Dispatch(context.Background(), req)
	require.False(t, resp.Ok())
	require.Equal(t, envelope.ErrMethodNotFound, resp.Error.Code)
}

func TestDispatchInvalidParams(t *testing.T) {
	s := NewServer()
	schema := json.RawMessage(`{"type":"object","required":["pin"],"properties":{"pin":{"type":"integer"}}}`)
	require.NoError(t, s.Register(Tool{
		Name:        "configure",
		InputSchema: schema,
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			return "ok", nil
		},
	}))

	req, err := envelope.NewRequest("r-2", "configure", map[string]any{"direction": "out"})
	require.NoError(t, err)

	resp := s.Dispatch(context.Background(), req)
	require.False(t, resp.Ok())
	require.Equal(t, envelope.ErrInvalidParams, resp.Error.Code)
}

func TestDispatchSuccess(t *testing.T) {
	s := NewServer()
	require.NoError(t, s.Register(echoTool("ping")))

	req, err := envelope.NewRequest("r-3", "ping", nil)
	require.NoError(t, err)

	resp := s.Dispatch(context.Background(), req)
	require.True(t, resp.Ok())
	require.Equal(t, "r-3", resp.ID)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	require.Equal(t, "true", out["ok"])
}

func TestDispatchConcurrencyCap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)

	s := NewServer(WithConcurrency(1))
	require.NoError(t, s.Register(Tool{
		Name: "slow",
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			entered <- struct{}{}
			<-release
			return "done", nil
		},
	}))

	req, err := envelope.NewRequest("r-4", "slow", nil)
	require.NoError(t, err)

	done := make(chan envelope.Envelope, 1)
	go func() {
		done <- s.Dispatch(context.Background(), req)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("handler never entered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req2, err := envelope.NewRequest("r-5", "slow", nil)
	require.NoError(t, err)
	resp := s.Dispatch(ctx, req2)
	require.False(t, resp.Ok())
	require.Equal(t, envelope.ErrTimeout, resp.Error.Code)

	close(release)
	<-done
}
