package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	req, err := NewRequest("u-1", "register_service", map[string]any{"name": "audio"})
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))

	redata, err := json.Marshal(decoded)
	require.NoError(t, err)

	var reRoundtripped map[string]any
	var original map[string]any
	require.NoError(t, json.Unmarshal(data, &original))
	require.NoError(t, json.Unmarshal(redata, &reRoundtripped))
	require.Equal(t, original, reRoundtripped)
}

func TestErrorResponseMutualExclusion(t *testing.T) {
	resp := NewErrorResponse("u-1", ErrNotFound, "service not found")
	require.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	require.True(t, resp.Error.Code == ErrNotFound)
	require.Equal(t, "not_found: service not found", resp.Error.Error())
}

func TestNotificationHasNoID(t *testing.T) {
	n, err := NewNotification("service_heartbeat", map[string]any{"name": "audio"})
	require.NoError(t, err)
	require.True(t, n.IsNotification())
	require.Empty(t, n.ID)
	require.False(t, n.IsRequest())
}

func TestUnknownFieldsPreserved(t *testing.T) {
	raw := []byte(`{"id":"u-1","type":"request","method":"ping","params":{},"trace_id":"abc123"}`)
	var e Envelope
	require.NoError(t, json.Unmarshal(raw, &e))
	require.Contains(t, e.Extra, "trace_id")

	out, err := json.Marshal(e)
	require.NoError(t, err)

	var roundtripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundtripped))
	require.Equal(t, "abc123", roundtripped["trace_id"])
}

func TestResultEnvelopeOk(t *testing.T) {
	resp, err := NewResult("u-2", map[string]any{"status": "ok"})
	require.NoError(t, err)
	require.True(t, resp.Ok())
}
