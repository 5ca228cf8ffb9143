package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
)

// Task is one unit of asynchronous work.
type Task struct {
	Handle      string
	Adapter     string
	Queue       string
	Priority    Priority
	Payload     json.RawMessage
	RequestID   string
	SubmittedAt time.Time
	StartedAt   time.Time
}

// PriorityQueue is the priority channel of one backend queue: one FIFO per
// level, popped highest level first. Safe for many producers and consumers;
// each pushed task is returned by exactly one Pop.
type PriorityQueue struct {
	name     string
	capacity int // 0 = unbounded

	mu     sync.Mutex
	levels [NumPriorities][]*Task
	size   int
	closed bool

	notify chan struct{}
	done   chan struct{}
}

// NewPriorityQueue creates an empty queue holding at most capacity tasks.
func NewPriorityQueue(name string, capacity int) *PriorityQueue {
	return &PriorityQueue{
		name:     name,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *PriorityQueue) Name() string { return q.name }

// Push appends t to the tail of its priority level.
func (q *PriorityQueue) Push(t *Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.capacity > 0 && q.size >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	level := ClampPriority(int(t.Priority))
	q.levels[level] = append(q.levels[level], t)
	q.size++
	q.mu.Unlock()

	q.signal()
	return nil
}

// TryPop removes the head of the highest non-empty level without blocking.
func (q *PriorityQueue) TryPop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop blocks until a task is available, ctx is done or the queue is closed
// and drained.
func (q *PriorityQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		t, ok := q.popLocked()
		remaining := q.size
		closed := q.closed
		q.mu.Unlock()

		if ok {
			// Pass the baton so another waiter picks up the rest.
			if remaining > 0 {
				q.signal()
			}
			return t, nil
		}
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

func (q *PriorityQueue) popLocked() (*Task, bool) {
	for level := NumPriorities - 1; level >= 0; level-- {
		if len(q.levels[level]) == 0 {
			continue
		}
		t := q.levels[level][0]
		q.levels[level][0] = nil
		q.levels[level] = q.levels[level][1:]
		q.size--
		return t, true
	}
	return nil, false
}

func (q *PriorityQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Depth returns the number of waiting tasks per priority level.
func (q *PriorityQueue) Depth() [NumPriorities]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var depth [NumPriorities]int
	for i := range q.levels {
		depth[i] = len(q.levels[i])
	}
	return depth
}

// Len returns the total number of waiting tasks.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close rejects further pushes. Waiting tasks can still be popped.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
