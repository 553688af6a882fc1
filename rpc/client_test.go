package rpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/transport"
	"github.com/stretchr/testify/require"
)

// pipePair returns two transport.Conn values wired so writes to one arrive
// as reads on the other, simulating a connected stdio pair.
func pipePair() (clientSide, serverSide transport.Conn) {
	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	clientSide = transport.NewStdioConn(clientR, clientW, clientW)
	serverSide = transport.NewStdioConn(serverR, serverW, serverW)
	return clientSide, serverSide
}

func TestClientCallRoundTrip(t *testing.T) {
	clientConn, serverConn := pipePair()

	s := NewServer()
	require.NoError(t, s.Register(Tool{
		Name: "echo",
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in map[string]string
			require.NoError(t, json.Unmarshal(params, &in))
			return in, nil
		},
	}))
	go func() { _ = s.Serve(context.Background(), serverConn) }()

	client := NewClient(clientConn)
	defer client.Close()

	result, err := client.Call(context.Background(), "echo", map[string]string{"hello": "world"}, time.Second)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(result, &out))
	require.Equal(t, "world", out["hello"])
}

func TestClientCallHandlerError(t *testing.T) {
	clientConn, serverConn := pipePair()

	s := NewServer()
	require.NoError(t, s.Register(Tool{
		Name: "fail",
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			return nil, errFail
		},
	}))
	go func() { _ = s.Serve(context.Background(), serverConn) }()

	client := NewClient(clientConn)
	defer client.Close()

	_, err := client.Call(context.Background(), "fail", nil, time.Second)
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrHandlerError, rpcErr.Code)
}

func TestClientCallTimeout(t *testing.T) {
	clientConn, serverConn := pipePair()
	defer serverConn.Close()

	// Read and discard the request so Send completes; nothing replies.
	go func() {
		for {
			if _, err := serverConn.Recv(); err != nil {
				return
			}
		}
	}()

	client := NewClient(clientConn)
	defer client.Close()

	_, err := client.Call(context.Background(), "never_registered", nil, 20*time.Millisecond)
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrTimeout, rpcErr.Code)
}

func TestClientClosePendingCallsFailWithTransportClosed(t *testing.T) {
	clientConn, serverConn := pipePair()

	client := NewClient(clientConn)

	// Read and discard the request so Send completes; nothing replies.
	go func() {
		for {
			if _, err := serverConn.Recv(); err != nil {
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "whatever", nil, 5*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, serverConn.Close())
	require.NoError(t, client.Close())

	err := <-errCh
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrTransportClosed, rpcErr.Code)
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errFail = stubErr("boom")
