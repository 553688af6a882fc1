package messaging

import (
	"container/list"
	"sync"

	"github.com/sparesparrow/ai-servis/envelope"
)

// channelQueue is a per-channel FIFO with priority insertion: urgent to the
// head, high after the urgent block, normal/low to the tail (spec.md §4.7).
type channelQueue struct {
	mu       sync.Mutex
	items    *list.List // of *Message
	capacity int
	byID     map[string]*list.Element
}

func newChannelQueue(capacity int) *channelQueue {
	return &channelQueue{items: list.New(), capacity: capacity, byID: make(map[string]*list.Element)}
}

// Enqueue inserts msg according to its priority, rejecting with queue_full
// once the channel is at capacity.
func (q *channelQueue) Enqueue(msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() >= q.capacity {
		return &envelope.Error{Code: envelope.ErrQueueFull, Message: "channel queue is full"}
	}

	q.insertByPriority(msg)
	q.reindex()
	return nil
}

// priorityRank collapses Normal and Low onto the same rank: both land in
// the tail FIFO block, in arrival order, per spec.md §4.7 ("normal/low to
// tail"). Urgent and High each keep their own FIFO block at the head.
func priorityRank(p Priority) int {
	if p == PriorityUrgent {
		return 2
	}
	if p == PriorityHigh {
		return 1
	}
	return 0
}

// insertByPriority inserts msg before the first queued item with a lower
// rank, giving a stable insertion that preserves FIFO order within a rank.
func (q *channelQueue) insertByPriority(msg *Message) {
	rank := priorityRank(msg.Priority)
	for el := q.items.Front(); el != nil; el = el.Next() {
		if priorityRank(el.Value.(*Message).Priority) < rank {
			q.items.InsertBefore(msg, el)
			return
		}
	}
	q.items.PushBack(msg)
}

func (q *channelQueue) reindex() {
	q.byID = make(map[string]*list.Element, q.items.Len())
	for el := q.items.Front(); el != nil; el = el.Next() {
		q.byID[el.Value.(*Message).ID] = el
	}
}

// DueBatch pops up to n messages at the front whose NextRetryAt has
// elapsed, leaving not-yet-due messages in place (spec.md §4.7 "up to
// batch_size messages whose next_retry_at <= now are dispatched").
func (q *channelQueue) DueBatch(n int, isDue func(*Message) bool) []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Message
	var next *list.Element
	for el := q.items.Front(); el != nil && len(out) < n; el = next {
		next = el.Next()
		m := el.Value.(*Message)
		if isDue(m) {
			out = append(out, m)
			q.items.Remove(el)
			delete(q.byID, m.ID)
		}
	}
	return out
}

// Requeue reinserts msg (e.g. after a failed attempt still under
// max_retries), preserving its priority ordering rule.
func (q *channelQueue) Requeue(msg *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertByPriority(msg)
	q.reindex()
}

// Len returns the number of currently queued messages.
func (q *channelQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear drops every queued message.
func (q *channelQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Init()
	q.byID = make(map[string]*list.Element)
}

// Remove drops a queued message by id.
func (q *channelQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.byID[id]
	if !ok {
		return false
	}
	q.items.Remove(el)
	delete(q.byID, id)
	return true
}

// Snapshot returns a copy of the currently queued messages, front to back.
func (q *channelQueue) Snapshot() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, 0, q.items.Len())
	for el := q.items.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Message))
	}
	return out
}
