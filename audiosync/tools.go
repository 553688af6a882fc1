package audiosync

import (
	"context"
	"encoding/json"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/rpc"
)

const (
	createGroupSchema = `{
		"type": "object",
		"required": ["group_id", "master_zone_id", "slave_zone_ids"],
		"properties": {
			"group_id": {"type": "string"},
			"master_zone_id": {"type": "string"},
			"slave_zone_ids": {"type": "array", "items": {"type": "string"}},
			"sync_mode": {"type": "string", "enum": ["simple_offset", "adaptive_delay", "kalman", "ptp_sync"]},
			"tolerance_seconds": {"type": "number"}
		}
	}`
	groupIDSchema = `{
		"type": "object",
		"required": ["group_id"],
		"properties": {"group_id": {"type": "string"}}
	}`
	zoneVolumeSchema = `{
		"type": "object",
		"required": ["zone_id", "volume"],
		"properties": {
			"zone_id": {"type": "string"},
			"volume": {"type": "number", "minimum": 0, "maximum": 1},
			"muted": {"type": "boolean"}
		}
	}`
	zoneStatsSchema = `{
		"type": "object",
		"required": ["group_id", "zone_id"],
		"properties": {
			"group_id": {"type": "string"},
			"zone_id": {"type": "string"}
		}
	}`
	zoneIDSchema = `{
		"type": "object",
		"required": ["zone_id"],
		"properties": {"zone_id": {"type": "string"}}
	}`
)

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			var zero T
			return zero, &envelope.Error{Code: envelope.ErrInvalidParams, Message: err.Error()}
		}
	}
	return v, nil
}

// Tools returns the rpc.Tool descriptors for the audio sync engine
// (spec.md §4.8).
func Tools(e *Engine) []rpc.Tool {
	return []rpc.Tool{
		{
			Name:        "create_sync_group",
			Description: "bind a master zone to a set of slave zones under a sync mode",
			InputSchema: json.RawMessage(createGroupSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					GroupID          string   `json:"group_id"`
					MasterZoneID     string   `json:"master_zone_id"`
					SlaveZoneIDs     []string `json:"slave_zone_ids"`
					SyncMode         string   `json:"sync_mode"`
					ToleranceSeconds float64  `json:"tolerance_seconds"`
				}](raw)
				if err != nil {
					return nil, err
				}
				g := SyncGroup{
					GroupID:          p.GroupID,
					MasterZoneID:     p.MasterZoneID,
					SlaveZoneIDs:     p.SlaveZoneIDs,
					SyncMode:         Algorithm(p.SyncMode),
					ToleranceSeconds: p.ToleranceSeconds,
				}
				if err := e.CreateSyncGroup(g); err != nil {
					return nil, err
				}
				return map[string]string{"group_id": g.GroupID}, nil
			},
		},
		{
			Name:        "remove_sync_group",
			Description: "remove a sync group and its retained statistics",
			InputSchema: json.RawMessage(groupIDSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					GroupID string `json:"group_id"`
				}](raw)
				if err != nil {
					return nil, err
				}
				if err := e.RemoveSyncGroup(p.GroupID); err != nil {
					return nil, err
				}
				return map[string]bool{"removed": true}, nil
			},
		},
		{
			Name:        "set_zone_volume",
			Description: "set a zone's volume and mute state",
			InputSchema: json.RawMessage(zoneVolumeSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					ZoneID string  `json:"zone_id"`
					Volume float64 `json:"volume"`
					Muted  bool    `json:"muted"`
				}](raw)
				if err != nil {
					return nil, err
				}
				if err := e.SetZoneVolume(p.ZoneID, p.Volume, p.Muted); err != nil {
					return nil, err
				}
				return map[string]bool{"applied": true}, nil
			},
		},
		{
			Name:        "get_sync_statistics",
			Description: "report the rolling sync statistics for a slave zone",
			InputSchema: json.RawMessage(zoneStatsSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					GroupID string `json:"group_id"`
					ZoneID  string `json:"zone_id"`
				}](raw)
				if err != nil {
					return nil, err
				}
				stats, ok := e.Statistics(p.GroupID, p.ZoneID)
				if !ok {
					return nil, &envelope.Error{Code: envelope.ErrNotFound, Message: "unknown group/zone pair"}
				}
				return stats, nil
			},
		},
		{
			Name:        "get_zone_status",
			Description: "report a zone's volume and mute state",
			InputSchema: json.RawMessage(zoneIDSchema),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				p, err := decodeParams[struct {
					ZoneID string `json:"zone_id"`
				}](raw)
				if err != nil {
					return nil, err
				}
				z, ok := e.Zone(p.ZoneID)
				if !ok {
					return nil, &envelope.Error{Code: envelope.ErrNotFound, Message: "unknown zone " + p.ZoneID}
				}
				return z, nil
			},
		},
	}
}
