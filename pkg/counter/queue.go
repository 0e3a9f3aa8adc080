package counter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Side identifies one of the two photobeam pairs of a gate.
type Side uint8

const (
	// SideA is the outer beam, crossed first on entry.
	SideA Side = iota
	// SideB is the inner beam, crossed first on exit.
	SideB
)

// String returns "A" or "B".
func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// EdgeEvent is one falling edge captured on a beam receiver.
// Events are produced by the interrupt handler and owned by the queue
// until consumed; they are never retained beyond processing.
type EdgeEvent struct {
	Gate int
	Side Side
	At   time.Time
}

// Queue is a bounded edge event queue between the interrupt context and
// the counter task. Pushes never block: when the queue is full the new
// event is dropped and counted, which is acceptable loss under overload.
type Queue struct {
	mu      sync.Mutex
	buf     []EdgeEvent
	head    int
	n       int
	dropped atomic.Int64
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 32
	}
	return &Queue{buf: make([]EdgeEvent, capacity)}
}

// Push adds an event, dropping it if the queue is full.
// Safe to call from the capture context; never blocks.
func (q *Queue) Push(ev EdgeEvent) bool {
	q.mu.Lock()
	if q.n == len(q.buf) {
		q.mu.Unlock()
		q.dropped.Add(1)
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = ev
	q.n++
	q.mu.Unlock()
	return true
}

// Pop removes and returns the oldest event, if any.
func (q *Queue) Pop() (EdgeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return EdgeEvent{}, false
	}
	ev := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped returns the total number of events lost to overflow.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
