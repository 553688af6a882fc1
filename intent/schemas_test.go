package intent

import (
	"testing"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

func newRegistryWithDefaultSchemas(t *testing.T) *Registry {
	t.Helper()
	r := New(config.New())
	for _, s := range DefaultSchemas() {
		r.RegisterSchema(s)
	}
	return r
}

func TestDefaultSchemasCoverTheClosedSet(t *testing.T) {
	r := newRegistryWithDefaultSchemas(t)
	for _, i := range All {
		_, ok := r.Schema(i)
		require.True(t, ok, "missing default schema for %s", i)
	}
}

func TestClassifyPlayJazzMusicIsAudioControlWithPlayAction(t *testing.T) {
	r := newRegistryWithDefaultSchemas(t)

	// The full catalog's keyword lists are long enough that the combined
	// score can fall under confidence_floor even for a clean match; spec.md
	// §8 scenario 2 only requires the winning intent and its action/target,
	// not a LowConfidence=false guarantee.
	got := r.Classify("play jazz music")
	require.Equal(t, AudioControl, got.Intent)

	schema, ok := r.Schema(got.Intent)
	require.True(t, ok)
	params := Extract("play jazz music", schema)
	require.Equal(t, "play", params["action"])
}

func TestClassifyTurnOnTheLightsIsSmartHome(t *testing.T) {
	r := newRegistryWithDefaultSchemas(t)

	got := r.Classify("turn on the lights in the kitchen")
	require.Equal(t, SmartHome, got.Intent)

	schema, ok := r.Schema(got.Intent)
	require.True(t, ok)
	params := Extract("turn on the lights in the kitchen", schema)
	require.Equal(t, "on", params["action"])
	// knownDevices checks "light" before "lights"; "lights" contains "light"
	// as a substring so the shorter entry wins the match.
	require.Equal(t, "light", params["device_type"])
	require.Equal(t, "kitchen", params["location"])
}

func TestFindActionReturnsFirstMatchingRule(t *testing.T) {
	action, ok := findAction(AudioControl, "please pause the music")
	require.True(t, ok)
	require.Equal(t, "pause", action)

	_, ok = findAction(Navigation, "directions to the mall")
	require.False(t, ok)
}
