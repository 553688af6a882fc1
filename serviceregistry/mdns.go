package serviceregistry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// MDNSBridge advertises local registrations on the LAN and synthesizes
// register_service/unregister_service calls for entries it discovers from
// peers (spec.md §4.3 "mDNS discovery").
type MDNSBridge struct {
	serviceType string
	logger      telemetry.Logger

	mu       sync.Mutex
	servers  map[string]*mdns.Server
	registry *Registry

	stopCh chan struct{}
}

// NewMDNSBridge constructs a bridge bound to registry. serviceType defaults
// to mdns_service_type from cfg ("_ai-servis._tcp.local." per spec.md §4.3).
func NewMDNSBridge(cfg *config.Store, registry *Registry, logger telemetry.Logger) *MDNSBridge {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &MDNSBridge{
		serviceType: cfg.String("mdns_service_type", config.DefaultMDNSServiceType),
		logger:      logger,
		servers:     make(map[string]*mdns.Server),
		registry:    registry,
		stopCh:      make(chan struct{}),
	}
}

// Announce publishes svc as an mDNS service instance with its capabilities
// joined into a comma-separated TXT record under the "capabilities" key.
func (b *MDNSBridge) Announce(svc Service) error {
	info := []string{"capabilities=" + strings.Join(svc.Capabilities, ",")}
	mdnsSvc, err := mdns.NewMDNSService(svc.Name, strings.TrimSuffix(b.serviceType, "."), "", "", svc.Port, nil, info)
	if err != nil {
		return fmt.Errorf("serviceregistry: mdns service %q: %w", svc.Name, err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: mdnsSvc})
	if err != nil {
		return fmt.Errorf("serviceregistry: mdns advertise %q: %w", svc.Name, err)
	}

	b.mu.Lock()
	if old, ok := b.servers[svc.Name]; ok {
		_ = old.Shutdown()
	}
	b.servers[svc.Name] = server
	b.mu.Unlock()
	return nil
}

// Withdraw stops advertising name.
func (b *MDNSBridge) Withdraw(name string) error {
	b.mu.Lock()
	server, ok := b.servers[name]
	if ok {
		delete(b.servers, name)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return server.Shutdown()
}

// Close shuts down every server started by Announce.
func (b *MDNSBridge) Close() error {
	close(b.stopCh)
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, server := range b.servers {
		if err := server.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.servers, name)
	}
	return firstErr
}

// Browse polls for peer mDNS entries every interval until ctx is done,
// synthesizing register_service/unregister_service calls on the bound
// registry. On a conflict (an existing entry with the same name), the
// incoming record wins per spec.md §4.3.
func (b *MDNSBridge) Browse(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	seen := make(map[string]bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.pollOnce(ctx, seen)
		}
	}
}

func (b *MDNSBridge) pollOnce(ctx context.Context, seen map[string]bool) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	current := make(map[string]bool)

	go func() {
		_ = mdns.Query(&mdns.QueryParam{
			Service: strings.TrimSuffix(b.serviceType, "."),
			Timeout: 2 * time.Second,
			Entries: entriesCh,
		})
		close(entriesCh)
	}()

	for entry := range entriesCh {
		name := entry.Name
		current[name] = true
		caps := capabilitiesFromTXT(entry.InfoFields)
		if _, err := b.registry.Register(ctx, RegisterParams{
			Name:         name,
			Host:         entry.Host,
			Port:         entry.Port,
			Capabilities: caps,
		}); err != nil {
			// Conflict: incoming record wins, so replace via Restart.
			_, _ = b.registry.Restart(ctx, RegisterParams{
				Name:         name,
				Host:         entry.Host,
				Port:         entry.Port,
				Capabilities: caps,
			})
		}
		seen[name] = true
	}

	for name := range seen {
		if !current[name] {
			_ = b.registry.Unregister(ctx, name)
			delete(seen, name)
		}
	}
}

func capabilitiesFromTXT(fields []string) []string {
	for _, f := range fields {
		if strings.HasPrefix(f, "capabilities=") {
			val := strings.TrimPrefix(f, "capabilities=")
			if val == "" {
				return nil
			}
			return strings.Split(val, ",")
		}
	}
	return nil
}
