package intent

import (
	"testing"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(config.New())
}

func TestClassifyKeywordSignal(t *testing.T) {
	r := newTestRegistry(t)
	r.RegisterSchema(Schema{
		Intent:   AudioControl,
		Keywords: []string{"play", "volume", "music"},
		Service:  "audio", Tool: "play_music",
	})
	r.RegisterSchema(Schema{
		Intent:   SmartHome,
		Keywords: []string{"lights", "thermostat", "lock"},
		Service:  "smarthome", Tool: "set_light",
	})

	got := r.Classify("please play some music")
	require.Equal(t, AudioControl, got.Intent)
	require.False(t, got.LowConfidence)
}

func TestClassifyLowConfidenceReportsAlternatives(t *testing.T) {
	r := newTestRegistry(t)
	r.RegisterSchema(Schema{Intent: AudioControl, Keywords: []string{"play", "volume"}})
	r.RegisterSchema(Schema{Intent: SmartHome, Keywords: []string{"lights"}})
	r.RegisterSchema(Schema{Intent: Navigation, Keywords: []string{"directions"}})

	got := r.Classify("what a nice day today")
	require.True(t, got.LowConfidence)
	require.LessOrEqual(t, len(got.Alternatives), 3)
}

func TestPatternSignalContributes(t *testing.T) {
	r := newTestRegistry(t)
	r.RegisterSchema(Schema{
		Intent:   HardwareControl,
		Keywords: []string{"pin"},
		Patterns: []string{`set pin \d+ to (high|low)`},
	})

	got := r.Classify("set pin 17 to high")
	require.Equal(t, HardwareControl, got.Intent)
}

func TestTrainableSignalAbsentUntilTrained(t *testing.T) {
	r := newTestRegistry(t)
	require.Nil(t, r.trainable.scores("turn on the lights"))

	r.Train("turn on the lights", SmartHome)
	r.Train("switch off the lights", SmartHome)
	r.Train("play my favorite song", AudioControl)

	scores := r.trainable.scores("turn off the lights please")
	require.NotNil(t, scores)
	require.Greater(t, scores[SmartHome], scores[AudioControl])
}

func TestExtractNumberClampedToSchemaRange(t *testing.T) {
	min, max := 0.0, 100.0
	schema := Schema{
		Parameters: []ParameterSchema{
			{Name: "volume", Type: TypeInteger, Min: &min, Max: &max},
		},
	}
	got := Extract("set volume to 150", schema)
	require.Equal(t, 100, got["volume"])
}

func TestExtractArtistFromByClause(t *testing.T) {
	schema := Schema{
		Parameters: []ParameterSchema{{Name: "artist", Type: TypeString}},
	}
	got := Extract("play songs by Daft Punk", schema)
	require.Equal(t, "daft punk", got["artist"])
}

func TestValidateRequiredMissing(t *testing.T) {
	schema := Schema{
		Parameters: []ParameterSchema{{Name: "pin", Type: TypeInteger, Required: true}},
	}
	_, errs := Validate(ExtractedParameters{}, schema)
	require.Len(t, errs, 1)
	require.Equal(t, "pin", errs[0].Field)
}

func TestValidateChoiceMismatch(t *testing.T) {
	schema := Schema{
		Parameters: []ParameterSchema{{Name: "direction", Type: TypeString, Choices: []string{"in", "out"}}},
	}
	_, errs := Validate(ExtractedParameters{"direction": "sideways"}, schema)
	require.Len(t, errs, 1)
}

func TestValidateAppliesDefault(t *testing.T) {
	schema := Schema{
		Parameters: []ParameterSchema{{Name: "unit", Type: TypeString, Default: "celsius"}},
	}
	validated, errs := Validate(ExtractedParameters{}, schema)
	require.Empty(t, errs)
	require.Equal(t, "celsius", validated["unit"])
}
