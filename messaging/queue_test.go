package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelQueueOrdersByPriority(t *testing.T) {
	q := newChannelQueue(10)
	require.NoError(t, q.Enqueue(&Message{ID: "normal-1", Priority: PriorityNormal}))
	require.NoError(t, q.Enqueue(&Message{ID: "urgent-1", Priority: PriorityUrgent}))
	require.NoError(t, q.Enqueue(&Message{ID: "high-1", Priority: PriorityHigh}))
	require.NoError(t, q.Enqueue(&Message{ID: "normal-2", Priority: PriorityNormal}))
	require.NoError(t, q.Enqueue(&Message{ID: "urgent-2", Priority: PriorityUrgent}))

	snap := q.Snapshot()
	ids := make([]string, len(snap))
	for i, m := range snap {
		ids[i] = m.ID
	}
	require.Equal(t, []string{"urgent-1", "urgent-2", "high-1", "normal-1", "normal-2"}, ids)
}

func TestChannelQueueFullRejects(t *testing.T) {
	q := newChannelQueue(1)
	require.NoError(t, q.Enqueue(&Message{ID: "a", Priority: PriorityNormal}))
	err := q.Enqueue(&Message{ID: "b", Priority: PriorityNormal})
	require.Error(t, err)
}

func TestChannelQueueDueBatchRespectsNextRetryAt(t *testing.T) {
	q := newChannelQueue(10)
	past := &Message{ID: "due", Priority: PriorityNormal}
	future := &Message{ID: "not-due", Priority: PriorityNormal}
	require.NoError(t, q.Enqueue(past))
	require.NoError(t, q.Enqueue(future))

	due := q.DueBatch(10, func(m *Message) bool { return m.ID == "due" })
	require.Len(t, due, 1)
	require.Equal(t, "due", due[0].ID)
	require.Equal(t, 1, q.Len())
}

func TestChannelQueueRemove(t *testing.T) {
	q := newChannelQueue(10)
	require.NoError(t, q.Enqueue(&Message{ID: "a", Priority: PriorityNormal}))
	require.True(t, q.Remove("a"))
	require.False(t, q.Remove("a"))
	require.Equal(t, 0, q.Len())
}
