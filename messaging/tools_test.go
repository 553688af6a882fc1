package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

func TestToolsEnqueueAndStatistics(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Set("message_interval", 10*time.Millisecond, false))
	m := New(cfg)
	m.RegisterChannel("notify", &recordingProvider{})
	tools := Tools(m)

	byName := make(map[string]func(context.Context, json.RawMessage) (any, error))
	for _, tl := range tools {
		byName[tl.Name] = tl.Handler
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	out, err := byName["enqueue_message"](context.Background(), json.RawMessage(`{"channel":"notify","payload":{"text":"hi"},"retry_strategy":"immediate"}`))
	require.NoError(t, err)
	result, ok := out.(map[string]string)
	require.True(t, ok)
	require.NotEmpty(t, result["message_id"])

	require.Eventually(t, func() bool {
		stats, err := byName["get_statistics"](context.Background(), nil)
		require.NoError(t, err)
		return stats.(Statistics).Successful == 1
	}, time.Second, 10*time.Millisecond)

	status, err := byName["get_queue_status"](context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, status.([]QueueStatus), 1)
}

func TestToolsClearQueueUnknownChannelFails(t *testing.T) {
	m := New(config.New())
	tools := Tools(m)
	var clear func(context.Context, json.RawMessage) (any, error)
	for _, tl := range tools {
		if tl.Name == "clear_queue" {
			clear = tl.Handler
		}
	}
	require.NotNil(t, clear)
	_, err := clear(context.Background(), json.RawMessage(`{"channel":"missing"}`))
	require.Error(t, err)
}

func TestToolsPauseResume(t *testing.T) {
	m := New(config.New())
	tools := Tools(m)
	byName := make(map[string]func(context.Context, json.RawMessage) (any, error))
	for _, tl := range tools {
		byName[tl.Name] = tl.Handler
	}

	out, err := byName["pause_queue"](context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"status": string(StatusStopped)}, out)

	_, err = byName["resume_queue"](context.Background(), nil)
	require.NoError(t, err)
}
