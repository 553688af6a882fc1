package audiosync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

type fakePositions struct {
	mu        sync.Mutex
	positions map[string]float64
}

func newFakePositions() *fakePositions {
	return &fakePositions{positions: make(map[string]float64)}
}

func (p *fakePositions) set(zone string, pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[zone] = pos
}

func (p *fakePositions) ZonePosition(ctx context.Context, zoneID string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[zoneID], nil
}

func TestSimpleOffsetCorrectionMatchesMeanDelay(t *testing.T) {
	positions := newFakePositions()
	e := New(config.New(), positions)
	require.NoError(t, e.CreateSyncGroup(SyncGroup{
		GroupID: "g1", MasterZoneID: "master", SlaveZoneIDs: []string{"slave"},
		SyncMode: AlgorithmSimpleOffset, ToleranceSeconds: 0.05,
	}))

	var emitted []CorrectionEvent
	e.sink = EventSinkFunc(func(evt CorrectionEvent) { emitted = append(emitted, evt) })

	delays := []float64{0.10, 0.12, 0.08, 0.10}
	masterPos := 0.0
	for _, d := range delays {
		masterPos += 1.0
		slavePos := masterPos - d
		positions.set("master", masterPos)
		positions.set("slave", slavePos)
		e.pollGroup(context.Background(), e.groups["g1"])
	}

	stats, ok := e.Statistics("g1", "slave")
	require.True(t, ok)
	require.Equal(t, 4, stats.Count)
	require.InDelta(t, 0.10, stats.AvgDelay, 1e-9)
	require.NotEmpty(t, emitted)
	require.InDelta(t, 0.10, emitted[len(emitted)-1].Correction, 1e-9)
}

func TestNoCorrectionEventWithinTolerance(t *testing.T) {
	positions := newFakePositions()
	e := New(config.New(), positions)
	require.NoError(t, e.CreateSyncGroup(SyncGroup{
		GroupID: "g1", MasterZoneID: "master", SlaveZoneIDs: []string{"slave"},
		SyncMode: AlgorithmSimpleOffset, ToleranceSeconds: 0.2,
	}))

	var emitted []CorrectionEvent
	e.sink = EventSinkFunc(func(evt CorrectionEvent) { emitted = append(emitted, evt) })

	delays := []float64{0.10, 0.12, 0.08, 0.10}
	masterPos := 0.0
	for _, d := range delays {
		masterPos += 1.0
		positions.set("master", masterPos)
		positions.set("slave", masterPos-d)
		e.pollGroup(context.Background(), e.groups["g1"])
	}

	require.Empty(t, emitted)
}

func TestMeasurementFIFOBoundedTo1000(t *testing.T) {
	positions := newFakePositions()
	e := New(config.New(), positions)
	require.NoError(t, e.CreateSyncGroup(SyncGroup{
		GroupID: "g1", MasterZoneID: "master", SlaveZoneIDs: []string{"slave"},
		SyncMode: AlgorithmSimpleOffset, ToleranceSeconds: 0.05,
	}))

	for i := 0; i < 1200; i++ {
		positions.set("master", float64(i))
		positions.set("slave", float64(i)-0.05)
		e.pollGroup(context.Background(), e.groups["g1"])
	}

	measurements, ok := e.Measurements("g1", "slave")
	require.True(t, ok)
	require.Len(t, measurements, measurementCap)
}

func TestKalmanCorrectionConverges(t *testing.T) {
	positions := newFakePositions()
	e := New(config.New(), positions)
	require.NoError(t, e.CreateSyncGroup(SyncGroup{
		GroupID: "g1", MasterZoneID: "master", SlaveZoneIDs: []string{"slave"},
		SyncMode: AlgorithmKalman, ToleranceSeconds: 0.01,
	}))

	var emitted []CorrectionEvent
	e.sink = EventSinkFunc(func(evt CorrectionEvent) { emitted = append(emitted, evt) })

	masterPos := 0.0
	for i := 0; i < 50; i++ {
		masterPos += 1.0
		positions.set("master", masterPos)
		positions.set("slave", masterPos-0.2)
		e.pollGroup(context.Background(), e.groups["g1"])
	}

	stats, ok := e.Statistics("g1", "slave")
	require.True(t, ok)
	require.InDelta(t, 0.2, stats.AvgDelay, 1e-6)
	require.NotEmpty(t, emitted)
	require.InDelta(t, 0.2, emitted[len(emitted)-1].Correction, 1e-6)
}

func TestQualityLevelDerivedFromScore(t *testing.T) {
	require.Equal(t, QualityUltra, qualityLevelFromScore(0.95))
	require.Equal(t, QualityHigh, qualityLevelFromScore(0.85))
	require.Equal(t, QualityMedium, qualityLevelFromScore(0.65))
	require.Equal(t, QualityLow, qualityLevelFromScore(0.2))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	positions := newFakePositions()
	cfg := config.New()
	require.NoError(t, cfg.Set("sync_interval", 5*time.Millisecond, false))
	e := New(cfg, positions)
	require.NoError(t, e.CreateSyncGroup(SyncGroup{
		GroupID: "g1", MasterZoneID: "master", SlaveZoneIDs: []string{"slave"},
		ToleranceSeconds: 0.05,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() { e.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after context cancellation")
	}

	_, ok := e.Measurements("g1", "slave")
	require.True(t, ok)
}
