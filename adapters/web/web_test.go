package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
	reply any
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, sessionID, userID, text string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return map[string]string{"echo": text}, nil
}

func newTestAdapter(t *testing.T, d *fakeDispatcher) *Adapter {
	t.Helper()
	cfg := config.New()
	require.NoError(t, cfg.Set("web_adapter_addr", "127.0.0.1:0", false))
	a := New(cfg, d)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		_ = a.Stop(context.Background())
	})
	// Start binds a fresh port but records it in a.listener; resolve it.
	a.addr = a.listener.Addr().String()
	return a
}

func TestHandleCommandDispatchesAndEncodes(t *testing.T) {
	d := &fakeDispatcher{reply: map[string]string{"status": "ok"}}
	a := newTestAdapter(t, d)

	body, _ := json.Marshal(commandRequest{Text: "turn on lights", SessionID: "s1", UserID: "u1"})
	resp, err := http.Post("http://"+a.addr+"/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "ok", out["status"])
	require.Equal(t, 1, d.calls)
	require.Equal(t, 1, a.Snapshot().MessagesIn)
	require.Equal(t, 1, a.Snapshot().MessagesOut)
}

func TestHandleCommandRejectsNonPost(t *testing.T) {
	a := newTestAdapter(t, &fakeDispatcher{})
	resp, err := http.Get("http://" + a.addr + "/command")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleCommandDispatchErrorReturnsBadGateway(t *testing.T) {
	d := &fakeDispatcher{err: context.DeadlineExceeded}
	a := newTestAdapter(t, d)

	body, _ := json.Marshal(commandRequest{Text: "x"})
	resp, err := http.Post("http://"+a.addr+"/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, 1, a.Snapshot().Errors)
}

func TestWebSocketRoundTrip(t *testing.T) {
	d := &fakeDispatcher{reply: map[string]string{"ack": "yes"}}
	a := newTestAdapter(t, d)

	wsURL := "ws://" + a.addr + "/ws?user_id=u1&session_id=s1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	require.Eventually(t, func() bool {
		return a.Snapshot().MessagesOut >= 1
	}, time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(payload), "yes"))
}

func TestBroadcastMessageReachesAllSockets(t *testing.T) {
	d := &fakeDispatcher{}
	a := newTestAdapter(t, d)

	wsURL := "ws://" + a.addr + "/ws"
	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn2.Close()

	require.Eventually(t, func() bool {
		return a.conns.Count() == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, a.BroadcastMessage(map[string]string{"event": "tick"}))

	for _, c := range []*websocket.Conn{conn1, conn2} {
		c.SetReadDeadline(time.Now().Add(time.Second))
		_, payload, err := c.ReadMessage()
		require.NoError(t, err)
		require.True(t, strings.Contains(string(payload), "tick"))
	}
}

func TestStopClosesServer(t *testing.T) {
	a := newTestAdapter(t, &fakeDispatcher{})
	require.NoError(t, a.Stop(context.Background()))

	_, err := http.Get("http://" + a.addr + "/command")
	require.Error(t, err)
}
