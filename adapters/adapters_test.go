package adapters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionRegistryAddRemove(t *testing.T) {
	r := NewConnectionRegistry()
	c := r.Add("user-1", "session-1")
	require.Equal(t, 1, r.Count())

	got, ok := r.Get(c.ID)
	require.True(t, ok)
	require.Equal(t, "user-1", got.UserID)

	r.Remove(c.ID)
	require.Equal(t, 0, r.Count())
	_, ok = r.Get(c.ID)
	require.False(t, ok)
}

func TestStatsCounterAccumulates(t *testing.T) {
	var c StatsCounter
	c.IncConnections(1)
	c.IncMessagesIn()
	c.IncMessagesIn()
	c.IncMessagesOut()
	c.IncErrors()

	snap := c.Snapshot()
	require.Equal(t, Stats{Connections: 1, MessagesIn: 2, MessagesOut: 1, Errors: 1}, snap)
}
