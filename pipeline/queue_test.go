package pipeline

import (
	"testing"

	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.Submit(Command{ID: "a", Priority: PriorityNormal}))
	require.NoError(t, q.Submit(Command{ID: "b", Priority: PriorityUrgent}))
	require.NoError(t, q.Submit(Command{ID: "c", Priority: PriorityNormal}))
	require.NoError(t, q.Submit(Command{ID: "d", Priority: PriorityHigh}))

	done := make(chan struct{})
	defer close(done)

	order := []string{}
	for i := 0; i < 4; i++ {
		cmd, ok := q.Dequeue(done)
		require.True(t, ok)
		order = append(order, cmd.ID)
	}
	require.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestQueueFullRejects(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Submit(Command{ID: "a"}))

	err := q.Submit(Command{ID: "b"})
	require.Error(t, err)
	var rpcErr *envelope.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, envelope.ErrQueueFull, rpcErr.Code)
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.Submit(Command{ID: "a"}))
	require.NoError(t, q.Submit(Command{ID: "b"}))

	require.True(t, q.Remove("a"))
	require.False(t, q.Remove("a"))
	require.Equal(t, 1, q.Len())
}
