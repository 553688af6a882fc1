package pipeline

import (
	"container/heap"
	"sync"

	"github.com/sparesparrow/ai-servis/envelope"
)

// queueItem wraps a Command with the sequence number that breaks ties
// within the same priority level (FIFO, spec.md §4.5).
type queueItem struct {
	cmd   Command
	seq   uint64
	index int
}

// priorityHeap is a container/heap.Interface ordering by Priority
// descending, then by seq ascending (lower seq = submitted earlier).
type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].cmd.Priority != h[j].cmd.Priority {
		return h[i].cmd.Priority > h[j].cmd.Priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a bounded, thread-safe priority queue of commands.
type Queue struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	heap     priorityHeap
	capacity int
	seq      uint64
	byID     map[string]*queueItem
}

// NewQueue constructs a Queue bounded at capacity entries.
func NewQueue(capacity int) *Queue {
	return &Queue{
		notEmpty: make(chan struct{}, 1),
		capacity: capacity,
		byID:     make(map[string]*queueItem),
	}
}

// Submit enqueues cmd, failing with queue_full once capacity is reached
// (spec.md §4.5).
func (q *Queue) Submit(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) >= q.capacity {
		return &envelope.Error{Code: envelope.ErrQueueFull, Message: "command queue is full"}
	}
	item := &queueItem{cmd: cmd, seq: q.seq}
	q.seq++
	heap.Push(&q.heap, item)
	q.byID[cmd.ID] = item
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Dequeue blocks on done or until a command is available, then pops the
// highest-priority, earliest-submitted entry.
func (q *Queue) Dequeue(done <-chan struct{}) (Command, bool) {
	for {
		q.mu.Lock()
		if len(q.heap) > 0 {
			item := heap.Pop(&q.heap).(*queueItem)
			delete(q.byID, item.cmd.ID)
			q.mu.Unlock()
			return item.cmd, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			return Command{}, false
		case <-q.notEmpty:
		}
	}
}

// Remove removes a still-queued command by id, returning true if it was
// found (used by cancel_command; spec.md §4.5).
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, item.index)
	delete(q.byID, id)
	return true
}

// Len returns the number of commands currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
