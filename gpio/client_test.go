package gpio

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDaemon is a minimal in-memory GPIO daemon for exercising Client
// against the real wire protocol, independent of cmd/gpio-daemon.
func fakeDaemon(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	pins := map[int]*int{}
	dirs := map[int]Direction{}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			var req request
			if json.Unmarshal([]byte(trimNewline(line)), &req) != nil {
				continue
			}
			var resp response
			switch req.Command {
			case "configure":
				dirs[req.Pin] = Direction(req.Direction)
				zero := 0
				pins[req.Pin] = &zero
				resp = response{Status: "success"}
			case "set":
				pins[req.Pin] = req.Value
				resp = response{Status: "success"}
			case "get":
				v, ok := pins[req.Pin]
				if !ok {
					resp = response{Status: "error", Message: "unconfigured pin"}
				} else {
					resp = response{Status: "success", Value: v}
				}
			case "status":
				var out []PinStatus
				for pin, v := range pins {
					out = append(out, PinStatus{Pin: pin, Direction: dirs[pin], Value: v})
				}
				resp = response{Status: "success", Pins: out}
			default:
				resp = response{Status: "error", Message: "unknown command"}
			}
			data, _ := json.Marshal(resp)
			conn.Write(append(data, '\n'))
		}
	}()
	return ln.Addr().String()
}

func TestConfigureSetGet(t *testing.T) {
	addr := fakeDaemon(t)
	c := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Configure(17, DirectionOutput))
	require.NoError(t, c.Set(17, 1))
	v, err := c.Get(17)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestToggle(t *testing.T) {
	addr := fakeDaemon(t)
	c := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Configure(4, DirectionOutput))
	require.NoError(t, c.Set(4, 0))

	v, err := c.Toggle(4)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = c.Toggle(4)
	require.NoError(t, err)
	require.Equal(t, 0, v)
}

func TestGetUnconfiguredPinErrors(t *testing.T) {
	addr := fakeDaemon(t)
	c := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	_, err := c.Get(99)
	require.Error(t, err)
}

func TestStatusReturnsAllPins(t *testing.T) {
	addr := fakeDaemon(t)
	c := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Configure(1, DirectionInput))
	require.NoError(t, c.Configure(2, DirectionOutput))

	pins, err := c.Status()
	require.NoError(t, err)
	require.Len(t, pins, 2)
}
