// Package config provides the runtime-tunable configuration store backing
// every component's manage_configuration operation. Values are typed,
// readable and writable at runtime, and optionally loaded from a YAML file
// at startup; when no file is provided, defaults from the specification
// apply.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the values called out across the specification.
const (
	DefaultHeartbeatTimeout   = 30 * time.Second
	DefaultCleanupInterval    = 15 * time.Second
	DefaultMDNSServiceType    = "_ai-servis._tcp.local."
	DefaultMQTTBroker         = "tcp://127.0.0.1:1883"
	DefaultMaxQueueSize       = 10000
	DefaultWorkerCount        = 10
	DefaultCommandTimeout     = 30 * time.Second
	DefaultCacheTTL           = time.Hour
	DefaultCacheSize          = 1000
	DefaultConfidenceFloor    = 0.3
	DefaultToolCallTimeout    = 30 * time.Second
	DefaultToolConcurrency    = 64
	DefaultMessageBatchSize   = 10
	DefaultMessageInterval    = time.Second
	DefaultSessionTTL         = 30 * time.Minute
	DefaultSyncInterval       = 100 * time.Millisecond
	DefaultMaxSyncDelay       = 2 * time.Second
	DefaultKeywordWeight      = 0.4
	DefaultTrainableWeight    = 0.4
	DefaultPatternWeight      = 0.2
	DefaultMetricsResetCount  = 10000
	DefaultCacheSweepInterval = time.Hour
	DefaultCorrectionEventRate = 5.0
	DefaultCorrectionEventBurst = 10
)

// ErrUnknownKey is returned by a strict Set when the key has no existing
// entry, and by Reset when the key has no registered default, matching the
// "unknown_key" error code from the RPC error taxonomy.
var ErrUnknownKey = fmt.Errorf("config: unknown key")

// Store is a process-local, concurrency-safe key/value configuration store.
// Values are stored as `any` and type-asserted by typed accessors; callers
// needing raw access can use Get/Set directly (used by manage_configuration).
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New constructs a Store pre-populated with the specification's defaults.
func New() *Store {
	return &Store{values: defaultValues()}
}

// LoadYAML merges key/value pairs from a YAML file into the store, overriding
// defaults. Missing file paths are not an error to keep a deployment without
// a config file fully functional on defaults.
func LoadYAML(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	s.mu.Lock()
	for k, v := range overrides {
		s.values[k] = v
	}
	s.mu.Unlock()
	return s, nil
}

// Get returns the raw value for key and whether it exists.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a new value for key. It returns ErrUnknownKey when strict is
// true and the key has no existing entry, matching manage_configuration's
// "set" contract that rejects keys the deployment does not recognize.
func (s *Store) Set(key string, value any, strict bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strict {
		if _, ok := s.values[key]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	s.values[key] = value
	return nil
}

// Reset restores a single key to its specification default, or all keys when
// key is empty.
func (s *Store) Reset(key string) error {
	defaults := defaultValues()
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		s.values = defaults
		return nil
	}
	v, ok := defaults[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.values[key] = v
	return nil
}

// Snapshot returns a shallow copy of every configured key/value pair, used to
// answer manage_configuration "get" calls without a key.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Duration returns key as a time.Duration, falling back to def when the key
// is absent or is not a duration-compatible value.
func (s *Store) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	case int:
		return time.Duration(d)
	}
	return def
}

// Int returns key as an int, falling back to def.
func (s *Store) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

// Float returns key as a float64, falling back to def.
func (s *Store) Float(key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

// String returns key as a string, falling back to def.
func (s *Store) String(key string, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

func defaultValues() map[string]any {
	return map[string]any{
		"heartbeat_timeout":    DefaultHeartbeatTimeout,
		"cleanup_interval":     DefaultCleanupInterval,
		"mdns_service_type":    DefaultMDNSServiceType,
		"mqtt_broker":          DefaultMQTTBroker,
		"max_queue_size":       DefaultMaxQueueSize,
		"worker_count":         DefaultWorkerCount,
		"command_timeout":      DefaultCommandTimeout,
		"cache_ttl":            DefaultCacheTTL,
		"cache_size":           DefaultCacheSize,
		"confidence_floor":     DefaultConfidenceFloor,
		"tool_call_timeout":    DefaultToolCallTimeout,
		"tool_concurrency":     DefaultToolConcurrency,
		"message_batch_size":   DefaultMessageBatchSize,
		"message_interval":     DefaultMessageInterval,
		"session_ttl":          DefaultSessionTTL,
		"sync_interval":        DefaultSyncInterval,
		"max_sync_delay":       DefaultMaxSyncDelay,
		"keyword_weight":       DefaultKeywordWeight,
		"trainable_weight":     DefaultTrainableWeight,
		"pattern_weight":       DefaultPatternWeight,
		"metrics_reset_count":  DefaultMetricsResetCount,
		"cache_sweep_interval": DefaultCacheSweepInterval,
		"correction_event_rate":  DefaultCorrectionEventRate,
		"correction_event_burst": DefaultCorrectionEventBurst,
	}
}
