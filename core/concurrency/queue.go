// File: core/concurrency/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CommandQueue is the cross-goroutine FIFO feeding the event loop. Producers
// push from any goroutine; only the loop drains. A one-slot wake channel is
// signalled on the empty -> non-empty transition so a burst of pushes costs
// a single wake-up.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// CommandQueue is a mutex-guarded FIFO of Commands with a wake signal.
type CommandQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	ready  chan struct{}
	closed bool
	batch  []Command // reused by Drain, loop goroutine only
}

// NewCommandQueue creates an empty open queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push appends cmd. It never blocks. After Close it returns ErrQueueClosed
// and cmd is dropped.
func (q *CommandQueue) Push(cmd Command) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	wasEmpty := q.items.Length() == 0
	q.items.Add(cmd)
	q.mu.Unlock()

	if wasEmpty {
		q.wake()
	}
	return nil
}

func (q *CommandQueue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
		// wake-up already pending
	}
}

// Ready returns the channel the loop waits on.
func (q *CommandQueue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Drain runs fn on every queued command in FIFO order, outside the lock,
// and keeps going until the queue is observed empty. Commands pushed by fn
// itself are therefore executed in the same call. Returns the number of
// commands executed.
func (q *CommandQueue) Drain(fn func(Command)) int {
	n := 0
	for {
		batch := q.take()
		if len(batch) == 0 {
			return n
		}
		for i, cmd := range batch {
			fn(cmd)
			batch[i] = nil
		}
		n += len(batch)
	}
}

func (q *CommandQueue) take() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batch = q.batch[:0]
	for q.items.Length() > 0 {
		q.batch = append(q.batch, q.items.Remove().(Command))
	}
	return q.batch
}

// Close rejects further pushes. Already queued commands stay drainable.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Closed reports whether Close has been called.
func (q *CommandQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
