package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sparesparrow/ai-servis/rpc"
	"github.com/sparesparrow/ai-servis/serviceregistry"
	"github.com/sparesparrow/ai-servis/transport"
)

// wsClientPool resolves an rpc.Client per registered service, keyed by
// host:port, dialing its WebSocket endpoint on first use
// (orchestrator.ClientPool). Later calls reuse the cached client; a client
// whose connection has closed is not replaced or redialed.
type wsClientPool struct {
	handshakeTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

func newWSClientPool(handshakeTimeout time.Duration) *wsClientPool {
	return &wsClientPool{
		handshakeTimeout: handshakeTimeout,
		clients:          make(map[string]*rpc.Client),
	}
}

func (p *wsClientPool) Client(ctx context.Context, svc serviceregistry.Service) (*rpc.Client, error) {
	key := fmt.Sprintf("%s:%d", svc.Host, svc.Port)

	p.mu.Lock()
	if c, ok := p.clients[key]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	url := fmt.Sprintf("ws://%s/ws", key)
	conn, err := transport.DialWebSocket(url, p.handshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: dial %s: %w", key, err)
	}
	client := rpc.NewClient(conn)

	p.mu.Lock()
	p.clients[key] = client
	p.mu.Unlock()
	return client, nil
}

func (p *wsClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		_ = c.Close()
	}
}
