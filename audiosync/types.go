// Package audiosync implements the multi-zone audio synchronization engine
// (spec.md §4.8): a master zone drives N slave zones under a sync mode, a
// poll loop samples position deltas into a bounded per-slave measurement
// history, and one of four algorithms turns that history into a clamped
// correction, emitting a correction event when it exceeds the group's
// tolerance.
package audiosync

import (
	"context"
	"time"
)

// Algorithm names a correction strategy (spec.md §4.8 step 3).
type Algorithm string

const (
	AlgorithmSimpleOffset  Algorithm = "simple_offset"
	AlgorithmAdaptiveDelay Algorithm = "adaptive_delay"
	AlgorithmKalman        Algorithm = "kalman"
	AlgorithmPTPSync       Algorithm = "ptp_sync"
)

// QualityLevel buckets a numeric quality score (spec.md §4.8 step 5).
type QualityLevel string

const (
	QualityLow    QualityLevel = "low"
	QualityMedium QualityLevel = "medium"
	QualityHigh   QualityLevel = "high"
	QualityUltra  QualityLevel = "ultra"
)

func qualityLevelFromScore(score float64) QualityLevel {
	switch {
	case score >= 0.9:
		return QualityUltra
	case score >= 0.8:
		return QualityHigh
	case score >= 0.6:
		return QualityMedium
	default:
		return QualityLow
	}
}

// Zone is a playback endpoint participating in one or more sync groups.
type Zone struct {
	ID           string        `json:"id"`
	Volume       float64       `json:"volume"`
	Muted        bool          `json:"muted"`
	NetworkDelay time.Duration `json:"network_delay"` // compensated out of the raw delay
	ClockOffset  time.Duration `json:"clock_offset"`  // compensated out of the raw delay
}

// SyncGroup binds one master zone to N slave zones under a sync mode
// (spec.md §4.8 "Sync group").
type SyncGroup struct {
	GroupID          string    `json:"group_id"`
	MasterZoneID     string    `json:"master_zone_id"`
	SlaveZoneIDs     []string  `json:"slave_zone_ids"`
	SyncMode         Algorithm `json:"sync_mode"`
	ToleranceSeconds float64   `json:"tolerance_seconds"`
}

// SyncMeasurement is one sampled delay/jitter/quality observation for a
// slave zone within a group (spec.md §4.8 "Sync measurement").
type SyncMeasurement struct {
	Timestamp      time.Time `json:"timestamp"`
	MasterPosition float64   `json:"master_position"`
	SlavePosition  float64   `json:"slave_position"`
	Delay          float64   `json:"delay"` // seconds, positive means slave lags master
	Jitter         float64   `json:"jitter"`
	Quality        float64   `json:"quality"`
}

// CorrectionEvent is emitted when the computed correction for a slave
// exceeds its group's tolerance (spec.md §4.8 step 4).
type CorrectionEvent struct {
	GroupID    string    `json:"group_id"`
	SlaveZone  string    `json:"slave_zone"`
	Correction float64   `json:"correction"`
	Timestamp  time.Time `json:"timestamp"`
}

// SyncStatistics is the rolling summary maintained per slave (spec.md §4.8
// "Sync statistics").
type SyncStatistics struct {
	AvgDelay     float64      `json:"avg_delay"`
	MaxDelay     float64      `json:"max_delay"`
	MinDelay     float64      `json:"min_delay"`
	Jitter       float64      `json:"jitter"`
	QualityLevel QualityLevel `json:"quality_level"`
	Count        int          `json:"count"`
	LastSyncTime time.Time    `json:"last_sync_time"`
}

// PositionProvider reports a zone's monotone playback position in seconds
// within the current track (spec.md §4.8 step 1, "pluggable
// get_zone_position").
type PositionProvider interface {
	ZonePosition(ctx context.Context, zoneID string) (float64, error)
}

// PositionProviderFunc adapts a function to PositionProvider.
type PositionProviderFunc func(ctx context.Context, zoneID string) (float64, error)

func (f PositionProviderFunc) ZonePosition(ctx context.Context, zoneID string) (float64, error) {
	return f(ctx, zoneID)
}

const (
	// measurementCap bounds each slave's SyncMeasurement FIFO (spec.md §4.8
	// "Invariants").
	measurementCap = 1000
	// performanceSampleCap bounds each slave's retained correction-event
	// history used for trend inspection (spec.md §4.8 "Invariants").
	performanceSampleCap = 100
	// recentWindow is how many of the most recent measurements feed the
	// simple_offset/adaptive_delay/ptp_sync algorithms (spec.md §4.8 "last
	// ≤10 delays").
	recentWindow = 10
)

// qualityTau maps a QualityLevel to its tolerance-seconds constant used by
// the quality function (spec.md §4.8 "Thresholds τ").
var qualityTau = map[QualityLevel]float64{
	QualityLow:    0.100,
	QualityMedium: 0.050,
	QualityHigh:   0.020,
	QualityUltra:  0.005,
}

// quality computes the spec.md §4.8 quality function for delay d and
// jitter j against tolerance tau, clamped to [0,1].
func quality(d, j, tau float64) float64 {
	if tau <= 0 {
		return 0
	}
	absD := d
	if absD < 0 {
		absD = -absD
	}
	score := 0.5*maxFloat(0, 1-absD/tau) + 0.5*maxFloat(0, 1-j/tau)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
