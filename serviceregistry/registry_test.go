package serviceregistry

import (
	"context"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := config.New()
	require.NoError(t, cfg.Set("heartbeat_timeout", 50*time.Millisecond, false))
	require.NoError(t, cfg.Set("cleanup_interval", 20*time.Millisecond, false))
	return New(cfg)
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterParams{Name: "audio", Host: "127.0.0.1", Port: 9000, Capabilities: []string{"audio_control"}})
	require.NoError(t, err)

	_, err = r.Register(ctx, RegisterParams{Name: "audio", Host: "127.0.0.1", Port: 9001})
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrAlreadyRegd, rpcErr.Code)
}

func TestHeartbeatUnknownFails(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Heartbeat(context.Background(), "nope")
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrNotFound, rpcErr.Code)
}

func TestUnregisterAbsentIsSilent(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Unregister(context.Background(), "nope"))
}

func TestDiscoverFiltersByCapability(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Register(ctx, RegisterParams{Name: "audio", Capabilities: []string{"audio_control"}})
	require.NoError(t, err)
	_, err = r.Register(ctx, RegisterParams{Name: "lights", Capabilities: []string{"smart_home"}})
	require.NoError(t, err)

	all := r.Discover("")
	require.Len(t, all, 2)

	filtered := r.Discover("smart_home")
	require.Len(t, filtered, 1)
	require.Equal(t, "lights", filtered[0].Name)
}

func TestCheckHealthMarksUnhealthyPastTimeout(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Register(ctx, RegisterParams{Name: "audio", Capabilities: []string{"audio_control"}})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	summary := r.CheckHealth()
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Unhealthy)
	require.Contains(t, summary.Names, "audio")

	svc, ok := r.Get("audio")
	require.True(t, ok)
	require.Equal(t, StatusUnhealthy, svc.Status)
}

func TestRestartPreservesUnspecifiedFields(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Register(ctx, RegisterParams{
		Name: "audio", Host: "10.0.0.1", Port: 9000,
		Capabilities: []string{"audio_control"}, Metadata: map[string]string{"zone": "kitchen"},
	})
	require.NoError(t, err)

	svc, err := r.Restart(ctx, RegisterParams{Name: "audio", Port: 9100})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", svc.Host)
	require.Equal(t, 9100, svc.Port)
	require.Equal(t, []string{"audio_control"}, svc.Capabilities)
	require.Equal(t, "kitchen", svc.Metadata["zone"])
}

func TestEvictionSweepRemovesStaleEntries(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Register(context.Background(), RegisterParams{Name: "audio", Capabilities: []string{"audio_control"}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		_, ok := r.Get("audio")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	<-done
}
