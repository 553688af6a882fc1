package audiosync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

func TestToolsCreateAndRemoveSyncGroup(t *testing.T) {
	e := New(config.New(), PositionProviderFunc(func(context.Context, string) (float64, error) { return 0, nil }))
	tools := Tools(e)
	byName := make(map[string]func(context.Context, json.RawMessage) (any, error))
	for _, tl := range tools {
		byName[tl.Name] = tl.Handler
	}

	_, err := byName["create_sync_group"](context.Background(), json.RawMessage(`{
		"group_id": "g1", "master_zone_id": "m", "slave_zone_ids": ["s1"], "tolerance_seconds": 0.05
	}`))
	require.NoError(t, err)

	_, err = byName["create_sync_group"](context.Background(), json.RawMessage(`{
		"group_id": "g1", "master_zone_id": "m", "slave_zone_ids": ["s1"]
	}`))
	require.Error(t, err)

	_, err = byName["remove_sync_group"](context.Background(), json.RawMessage(`{"group_id": "g1"}`))
	require.NoError(t, err)

	_, err = byName["remove_sync_group"](context.Background(), json.RawMessage(`{"group_id": "g1"}`))
	require.Error(t, err)
}

func TestToolsSetZoneVolumeUnknownZoneFails(t *testing.T) {
	e := New(config.New(), PositionProviderFunc(func(context.Context, string) (float64, error) { return 0, nil }))
	tools := Tools(e)
	var setVolume func(context.Context, json.RawMessage) (any, error)
	for _, tl := range tools {
		if tl.Name == "set_zone_volume" {
			setVolume = tl.Handler
		}
	}
	_, err := setVolume(context.Background(), json.RawMessage(`{"zone_id": "missing", "volume": 0.5}`))
	require.Error(t, err)
}

func TestToolsGetSyncStatisticsUnknownPairFails(t *testing.T) {
	e := New(config.New(), PositionProviderFunc(func(context.Context, string) (float64, error) { return 0, nil }))
	tools := Tools(e)
	var getStats func(context.Context, json.RawMessage) (any, error)
	for _, tl := range tools {
		if tl.Name == "get_sync_statistics" {
			getStats = tl.Handler
		}
	}
	_, err := getStats(context.Background(), json.RawMessage(`{"group_id": "missing", "zone_id": "missing"}`))
	require.Error(t, err)
}
