// Package queue buffers outbound messages while no connection is open.
package queue

import (
	"sync"

	"github.com/livews/livews.go/pkg/transport"
)

// Unbounded disables the capacity check.
const Unbounded = -1

// Queue is a bounded FIFO of outbound messages.
//
// Enqueue silently drops messages once the queue holds Capacity entries.
// Callers cannot tell a dropped message from a queued one.
type Queue struct {
	mu       sync.Mutex
	capacity int
	messages []transport.Message
}

// New creates a queue holding at most capacity messages, or any number of
// messages if capacity is Unbounded.
func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Enqueue appends msg and reports whether it was kept.
func (q *Queue) Enqueue(msg transport.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity != Unbounded && len(q.messages) >= q.capacity {
		return false
	}
	q.messages = append(q.messages, msg)
	return true
}

// Flush hands every queued message to send in FIFO order and empties the
// queue. Send errors do not stop the flush.
func (q *Queue) Flush(send func(transport.Message) error) []error {
	q.mu.Lock()
	messages := q.messages
	q.messages = nil
	q.mu.Unlock()

	var errs []error
	for _, msg := range messages {
		if err := send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.messages)
}

// BufferedBytes sums the sizes of the queued messages.
func (q *Queue) BufferedBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, msg := range q.messages {
		total += msg.Size()
	}
	return total
}
