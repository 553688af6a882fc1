// Package serviceregistry implements the service discovery and health
// component (spec.md §4.3): services register themselves and send periodic
// heartbeats, the registry evicts services that go stale, and callers can
// discover registered services by capability. The in-process map is
// optionally mirrored onto mDNS and MQTT for cross-process discovery.
package serviceregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// Status is the derived health of a registered service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Service is a registered component: its identity, what it can do, and
// where to reach it.
type Service struct {
	Name           string            `json:"name"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Capabilities   []string          `json:"capabilities"`
	HealthEndpoint string            `json:"health_endpoint,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         Status            `json:"status"`
	RegisteredAt   time.Time         `json:"registered_at"`
	LastHeartbeat  time.Time         `json:"last_heartbeat"`
}

// Bridge mirrors registry state onto an external discovery mechanism
// (mDNS, MQTT). Implementations must not block Registry's internal lock.
type Bridge interface {
	Announce(svc Service) error
	Withdraw(name string) error
	Close() error
}

// Registry holds the set of currently registered services in memory and
// runs a background eviction sweep. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service

	cfg *config.Store

	bridges []Bridge

	logger  telemetry.Logger
	metrics telemetry.Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithBridge attaches an external discovery bridge. Announce/Withdraw are
// called synchronously from Register/Unregister/the eviction sweep.
func WithBridge(b Bridge) Option {
	return func(r *Registry) { r.bridges = append(r.bridges, b) }
}

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// AddBridge attaches a bridge after construction. Bridges such as
// MDNSBridge/MQTTBridge need a *Registry to forward discovered peers into,
// which isn't available yet at WithBridge-via-New time, so callers wire
// them up with New first, then AddBridge.
func (r *Registry) AddBridge(b Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges = append(r.bridges, b)
}

// New constructs a Registry. cfg supplies the runtime-tunable
// heartbeat_timeout, cleanup_interval, mdns_service_type and mqtt_broker
// values surfaced through manage_configuration; it must not be nil.
func New(cfg *config.Store, opts ...Option) *Registry {
	r := &Registry{
		services: make(map[string]*Service),
		cfg:      cfg,
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) heartbeatTimeout() time.Duration {
	return r.cfg.Duration("heartbeat_timeout", config.DefaultHeartbeatTimeout)
}

func (r *Registry) cleanupInterval() time.Duration {
	return r.cfg.Duration("cleanup_interval", config.DefaultCleanupInterval)
}

// Run starts the background eviction sweep; it blocks until ctx is done or
// Stop is called. The sweep interval re-reads cleanup_interval from config
// each cycle so manage_configuration changes take effect without a restart.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.stopped)
	for {
		timer := time.NewTimer(r.cleanupInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			r.evictStale(ctx)
		}
	}
}

// Stop ends the background sweep and waits for Run to return.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.stopped
}

// evictStale removes entries with now-last_heartbeat > 2*heartbeat_timeout
// (spec.md §4.3 "Eviction").
func (r *Registry) evictStale(ctx context.Context) {
	now := time.Now()
	threshold := 2 * r.heartbeatTimeout()

	r.mu.Lock()
	var evicted []string
	for name, svc := range r.services {
		if now.Sub(svc.LastHeartbeat) > threshold {
			evicted = append(evicted, name)
			delete(r.services, name)
		}
	}
	r.mu.Unlock()

	for _, name := range evicted {
		r.logger.Info(ctx, "serviceregistry: evicted stale service", "service", name)
		r.metrics.IncCounter("serviceregistry.evictions", 1, "service", name)
		r.withdrawFromBridges(name)
	}
}

// RegisterParams carries the fields of register_service/restart_service.
type RegisterParams struct {
	Name           string            `json:"name"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Capabilities   []string          `json:"capabilities"`
	HealthEndpoint string            `json:"health_endpoint,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Register inserts a new service entry. It fails with already_registered if
// the name exists (spec.md §4.3).
func (r *Registry) Register(ctx context.Context, p RegisterParams) (*Service, error) {
	if p.Name == "" {
		return nil, &envelope.Error{Code: envelope.ErrInvalidParams, Message: "name is required"}
	}
	now := time.Now()

	r.mu.Lock()
	if _, exists := r.services[p.Name]; exists {
		r.mu.Unlock()
		return nil, &envelope.Error{Code: envelope.ErrAlreadyRegd, Message: fmt.Sprintf("service %q already registered", p.Name)}
	}
	svc := &Service{
		Name:           p.Name,
		Host:           p.Host,
		Port:           p.Port,
		Capabilities:   append([]string(nil), p.Capabilities...),
		HealthEndpoint: p.HealthEndpoint,
		Metadata:       p.Metadata,
		Status:         StatusHealthy,
		RegisteredAt:   now,
		LastHeartbeat:  now,
	}
	r.services[p.Name] = svc
	r.mu.Unlock()

	r.logger.Info(ctx, "serviceregistry: registered service", "service", p.Name, "capabilities", p.Capabilities)
	r.metrics.IncCounter("serviceregistry.registrations", 1, "service", p.Name)
	r.announceToBridges(*svc)
	return svc, nil
}

// Heartbeat refreshes a service's last_heartbeat and marks it healthy.
// Unknown names fail with not_found.
func (r *Registry) Heartbeat(ctx context.Context, name string) error {
	r.mu.Lock()
	svc, ok := r.services[name]
	if ok {
		svc.LastHeartbeat = time.Now()
		svc.Status = StatusHealthy
	}
	r.mu.Unlock()
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: fmt.Sprintf("service %q not registered", name)}
	}
	return nil
}

// Unregister removes a service immediately, independent of the eviction
// sweep. It is silent (no error) when the name is absent (spec.md §4.3).
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	_, ok := r.services[name]
	if ok {
		delete(r.services, name)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.logger.Info(ctx, "serviceregistry: unregistered service", "service", name)
	r.withdrawFromBridges(name)
	return nil
}

// Restart atomically unregisters and re-registers a service, preserving any
// field left zero-valued in p from the existing entry (spec.md §4.3
// "Atomic unregister+register preserving unspecified fields").
func (r *Registry) Restart(ctx context.Context, p RegisterParams) (*Service, error) {
	r.mu.Lock()
	existing, ok := r.services[p.Name]
	if ok {
		if p.Host == "" {
			p.Host = existing.Host
		}
		if p.Port == 0 {
			p.Port = existing.Port
		}
		if len(p.Capabilities) == 0 {
			p.Capabilities = existing.Capabilities
		}
		if p.HealthEndpoint == "" {
			p.HealthEndpoint = existing.HealthEndpoint
		}
		if p.Metadata == nil {
			p.Metadata = existing.Metadata
		}
		delete(r.services, p.Name)
	}
	r.mu.Unlock()

	if ok {
		r.withdrawFromBridges(p.Name)
	}

	now := time.Now()
	svc := &Service{
		Name:           p.Name,
		Host:           p.Host,
		Port:           p.Port,
		Capabilities:   append([]string(nil), p.Capabilities...),
		HealthEndpoint: p.HealthEndpoint,
		Metadata:       p.Metadata,
		Status:         StatusHealthy,
		RegisteredAt:   now,
		LastHeartbeat:  now,
	}
	r.mu.Lock()
	r.services[p.Name] = svc
	r.mu.Unlock()

	r.logger.Info(ctx, "serviceregistry: restarted service", "service", p.Name)
	r.announceToBridges(*svc)
	return svc, nil
}

// Discover returns a snapshot of registered services, optionally filtered
// by a required capability, sorted by name for deterministic output.
func (r *Registry) Discover(capability string) []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		if capability != "" && !hasCapability(svc.Capabilities, capability) {
			continue
		}
		out = append(out, *svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HealthSummary aggregates check_service_health's per-entry pass.
type HealthSummary struct {
	Total     int      `json:"total"`
	Healthy   int      `json:"healthy"`
	Unhealthy int      `json:"unhealthy"`
	Names     []string `json:"unhealthy_names,omitempty"`
}

// CheckHealth re-derives each entry's Status from now-last_heartbeat versus
// heartbeat_timeout and returns the aggregate (spec.md §4.3
// "check_service_health").
func (r *Registry) CheckHealth() HealthSummary {
	now := time.Now()
	timeout := r.heartbeatTimeout()

	r.mu.Lock()
	defer r.mu.Unlock()
	summary := HealthSummary{Total: len(r.services)}
	for _, svc := range r.services {
		if now.Sub(svc.LastHeartbeat) > timeout {
			svc.Status = StatusUnhealthy
			summary.Unhealthy++
			summary.Names = append(summary.Names, svc.Name)
		} else {
			svc.Status = StatusHealthy
			summary.Healthy++
		}
	}
	sort.Strings(summary.Names)
	return summary
}

// Get returns a copy of the named service, if registered.
func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return Service{}, false
	}
	return *svc, true
}

func (r *Registry) announceToBridges(svc Service) {
	for _, b := range r.bridges {
		if err := b.Announce(svc); err != nil {
			r.logger.Warn(context.Background(), "serviceregistry: bridge announce failed", "service", svc.Name, "error", err.Error())
		}
	}
}

func (r *Registry) withdrawFromBridges(name string) {
	for _, b := range r.bridges {
		if err := b.Withdraw(name); err != nil {
			r.logger.Warn(context.Background(), "serviceregistry: bridge withdraw failed", "service", name, "error", err.Error())
		}
	}
}

func hasCapability(caps []string, want string) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}
