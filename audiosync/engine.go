package audiosync

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/telemetry"
	"golang.org/x/time/rate"
)

// slaveState is the per-(group,slave) working set: the bounded measurement
// FIFO, its Kalman filter, and the rolling statistics.
type slaveState struct {
	mu           sync.Mutex
	measurements []SyncMeasurement // bounded to measurementCap, oldest first
	corrections  []CorrectionEvent // bounded to performanceSampleCap
	kalman       *scalarKalman
	stats        SyncStatistics
	limiter      *rate.Limiter // bounds how often a correction event fires for this slave
}

func newSlaveState(limit rate.Limit, burst int) *slaveState {
	return &slaveState{kalman: newScalarKalman(), limiter: rate.NewLimiter(limit, burst)}
}

// EventSink receives correction events as the engine emits them.
type EventSink interface {
	CorrectionEmitted(evt CorrectionEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(evt CorrectionEvent)

func (f EventSinkFunc) CorrectionEmitted(evt CorrectionEvent) { f(evt) }

// Engine owns the sync groups, zones, and the polling loop that keeps
// slaves within tolerance of their master (spec.md §4.8).
type Engine struct {
	mu       sync.RWMutex
	groups   map[string]*SyncGroup
	zones    map[string]*Zone
	slaves   map[string]*slaveState // key: groupID + "/" + zoneID

	positions PositionProvider
	sink      EventSink
	logger    telemetry.Logger

	pollInterval time.Duration
	maxSyncDelay time.Duration

	correctionRateLimit rate.Limit
	correctionBurst     int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithEventSink registers the consumer of correction events.
func WithEventSink(s EventSink) Option { return func(e *Engine) { e.sink = s } }

// New constructs an Engine bound to a position provider.
func New(cfg *config.Store, positions PositionProvider, opts ...Option) *Engine {
	e := &Engine{
		groups:       make(map[string]*SyncGroup),
		zones:        make(map[string]*Zone),
		slaves:       make(map[string]*slaveState),
		positions:    positions,
		sink:         EventSinkFunc(func(CorrectionEvent) {}),
		logger:       telemetry.NewNoopLogger(),
		pollInterval: cfg.Duration("sync_interval", config.DefaultSyncInterval),
		maxSyncDelay: cfg.Duration("max_sync_delay", config.DefaultMaxSyncDelay),
		stopCh:       make(chan struct{}),

		correctionRateLimit: rate.Limit(cfg.Float("correction_event_rate", config.DefaultCorrectionEventRate)),
		correctionBurst:     cfg.Int("correction_event_burst", config.DefaultCorrectionEventBurst),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func slaveKey(groupID, zoneID string) string { return groupID + "/" + zoneID }

// RegisterZone adds or updates a zone's configuration.
func (e *Engine) RegisterZone(z Zone) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zones[z.ID] = &z
}

// Zone returns a copy of a registered zone's state.
func (e *Engine) Zone(id string) (Zone, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	z, ok := e.zones[id]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}

// SetZoneVolume updates a zone's volume (0..1) and mute state.
func (e *Engine) SetZoneVolume(id string, volume float64, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, ok := e.zones[id]
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: "unknown zone " + id}
	}
	z.Volume = volume
	z.Muted = muted
	return nil
}

// CreateSyncGroup registers a new sync group and its per-slave state.
func (e *Engine) CreateSyncGroup(g SyncGroup) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.groups[g.GroupID]; exists {
		return &envelope.Error{Code: envelope.ErrAlreadyRegd, Message: "sync group already exists: " + g.GroupID}
	}
	if g.SyncMode == "" {
		g.SyncMode = AlgorithmSimpleOffset
	}
	e.groups[g.GroupID] = &g
	for _, slaveID := range g.SlaveZoneIDs {
		e.slaves[slaveKey(g.GroupID, slaveID)] = newSlaveState(e.correctionRateLimit, e.correctionBurst)
	}
	return nil
}

// RemoveSyncGroup drops a sync group and its retained per-slave state.
func (e *Engine) RemoveSyncGroup(groupID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[groupID]
	if !ok {
		return &envelope.Error{Code: envelope.ErrNotFound, Message: "unknown sync group " + groupID}
	}
	for _, slaveID := range g.SlaveZoneIDs {
		delete(e.slaves, slaveKey(groupID, slaveID))
	}
	delete(e.groups, groupID)
	return nil
}

// Run starts the poll loop; it blocks until ctx is cancelled or Stop is
// called.
func (e *Engine) Run(ctx context.Context) {
	e.wg.Add(1)
	defer e.wg.Done()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

// Stop halts the poll loop.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) pollOnce(ctx context.Context) {
	e.mu.RLock()
	groups := make([]*SyncGroup, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	e.mu.RUnlock()

	for _, g := range groups {
		e.pollGroup(ctx, g)
	}
}

func (e *Engine) pollGroup(ctx context.Context, g *SyncGroup) {
	masterPos, err := e.positions.ZonePosition(ctx, g.MasterZoneID)
	if err != nil {
		e.logger.Warn(ctx, "master position unavailable", "group", g.GroupID, "zone", g.MasterZoneID, "error", err)
		return
	}

	for _, slaveID := range g.SlaveZoneIDs {
		slavePos, err := e.positions.ZonePosition(ctx, slaveID)
		if err != nil {
			e.logger.Warn(ctx, "slave position unavailable", "group", g.GroupID, "zone", slaveID, "error", err)
			continue
		}
		e.syncSlave(g, slaveID, masterPos, slavePos)
	}
}

func (e *Engine) syncSlave(g *SyncGroup, slaveID string, masterPos, slavePos float64) {
	e.mu.RLock()
	st, ok := e.slaves[slaveKey(g.GroupID, slaveID)]
	zone, zoneOK := e.zones[slaveID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	var networkDelay, clockOffset time.Duration
	if zoneOK {
		networkDelay = zone.NetworkDelay
		clockOffset = zone.ClockOffset
	}

	rawDelay := masterPos - slavePos - networkDelay.Seconds() - clockOffset.Seconds()
	now := time.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	combined := append(recentDelays(st.measurements), rawDelay)
	if len(combined) > recentWindow {
		combined = combined[len(combined)-recentWindow:]
	}
	jitter := stddev(combined)
	tau := g.ToleranceSeconds
	if tau <= 0 {
		tau = qualityTau[QualityLow]
	}
	q := quality(rawDelay, jitter, tau)

	measurement := SyncMeasurement{
		Timestamp:      now,
		MasterPosition: masterPos,
		SlavePosition:  slavePos,
		Delay:          rawDelay,
		Jitter:         jitter,
		Quality:        q,
	}
	st.measurements = append(st.measurements, measurement)
	if len(st.measurements) > measurementCap {
		st.measurements = st.measurements[len(st.measurements)-measurementCap:]
	}

	correction := e.computeCorrection(g, st, measurement)
	if correction > e.maxSyncDelay.Seconds() {
		correction = e.maxSyncDelay.Seconds()
	}
	if correction < -e.maxSyncDelay.Seconds() {
		correction = -e.maxSyncDelay.Seconds()
	}

	e.updateStatistics(st, measurement)

	if math.Abs(correction) > g.ToleranceSeconds && st.limiter.Allow() {
		evt := CorrectionEvent{GroupID: g.GroupID, SlaveZone: slaveID, Correction: correction, Timestamp: now}
		st.corrections = append(st.corrections, evt)
		if len(st.corrections) > performanceSampleCap {
			st.corrections = st.corrections[len(st.corrections)-performanceSampleCap:]
		}
		e.sink.CorrectionEmitted(evt)
	}
}

func (e *Engine) computeCorrection(g *SyncGroup, st *slaveState, latest SyncMeasurement) float64 {
	window := recentWindowMeasurements(st.measurements)

	switch g.SyncMode {
	case AlgorithmAdaptiveDelay:
		var weightedSum, weightTotal float64
		for _, m := range window {
			if m.Quality <= 0 {
				continue
			}
			weightedSum += m.Delay * m.Quality
			weightTotal += m.Quality
		}
		if weightTotal == 0 {
			return latest.Delay
		}
		return weightedSum / weightTotal
	case AlgorithmKalman:
		return st.kalman.Update(latest.Delay)
	case AlgorithmPTPSync:
		t := make([]float64, len(window))
		d := make([]float64, len(window))
		for i, m := range window {
			t[i] = float64(m.Timestamp.UnixNano()) / 1e9
			d[i] = m.Delay
		}
		now := float64(latest.Timestamp.UnixNano()) / 1e9
		return linearRegression(t, d, now)
	default: // AlgorithmSimpleOffset
		var sum float64
		for _, m := range window {
			sum += m.Delay
		}
		if len(window) == 0 {
			return 0
		}
		return sum / float64(len(window))
	}
}

func (e *Engine) updateStatistics(st *slaveState, m SyncMeasurement) {
	s := &st.stats
	if s.Count == 0 {
		s.MinDelay = m.Delay
		s.MaxDelay = m.Delay
		s.AvgDelay = m.Delay
	} else {
		if m.Delay < s.MinDelay {
			s.MinDelay = m.Delay
		}
		if m.Delay > s.MaxDelay {
			s.MaxDelay = m.Delay
		}
		s.AvgDelay += (m.Delay - s.AvgDelay) / float64(s.Count+1)
	}
	s.Jitter = m.Jitter
	s.Count++
	s.LastSyncTime = m.Timestamp
	s.QualityLevel = qualityLevelFromScore(m.Quality)
}

// Statistics returns the current rolling statistics for a slave zone within
// a group.
func (e *Engine) Statistics(groupID, zoneID string) (SyncStatistics, bool) {
	e.mu.RLock()
	st, ok := e.slaves[slaveKey(groupID, zoneID)]
	e.mu.RUnlock()
	if !ok {
		return SyncStatistics{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stats, true
}

// Measurements returns a copy of the retained measurement history for a
// slave zone within a group.
func (e *Engine) Measurements(groupID, zoneID string) ([]SyncMeasurement, bool) {
	e.mu.RLock()
	st, ok := e.slaves[slaveKey(groupID, zoneID)]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]SyncMeasurement, len(st.measurements))
	copy(out, st.measurements)
	return out, true
}

func recentDelays(measurements []SyncMeasurement) []float64 {
	window := recentWindowMeasurements(measurements)
	out := make([]float64, len(window))
	for i, m := range window {
		out[i] = m.Delay
	}
	return out
}

func recentWindowMeasurements(measurements []SyncMeasurement) []SyncMeasurement {
	if len(measurements) <= recentWindow {
		return measurements
	}
	return measurements[len(measurements)-recentWindow:]
}

func stddev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance)
}
