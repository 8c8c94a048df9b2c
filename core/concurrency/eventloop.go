// File: core/concurrency/eventloop.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop owns the single background goroutine that executes Commands and
// every I/O resource registered with it. Callers only ever Push; the stop
// request travels on its own channel so it is seen even while the queue is
// being drained.

package concurrency

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/momentics/hioload-bridge/affinity"
)

// Resource is a loop-owned object that must be closed before the loop exits.
type Resource interface {
	Close() error
}

// Observer receives loop telemetry. Implementations must be safe for
// concurrent use since Push is called from any goroutine.
type Observer interface {
	CommandEnqueued(k Kind)
	CommandExecuted(k Kind, d time.Duration)
	CommandPanicked(k Kind)
	QueueDepth(n int)
	LoopStarted()
	LoopStopped()
}

type noopObserver struct{}

func (noopObserver) CommandEnqueued(Kind)                {}
func (noopObserver) CommandExecuted(Kind, time.Duration) {}
func (noopObserver) CommandPanicked(Kind)                {}
func (noopObserver) QueueDepth(int)                      {}
func (noopObserver) LoopStarted()                        {}
func (noopObserver) LoopStopped()                        {}

// LoopOption customizes an EventLoop.
type LoopOption func(*EventLoop)

// WithLoopLogger sets the logger used for command failures and lifecycle.
func WithLoopLogger(l *log.Logger) LoopOption {
	return func(el *EventLoop) {
		if l != nil {
			el.logger = l
		}
	}
}

// WithObserver attaches a telemetry sink.
func WithObserver(o Observer) LoopOption {
	return func(el *EventLoop) {
		if o != nil {
			el.observer = o
		}
	}
}

// WithLockOSThread pins the loop goroutine to one OS thread for its lifetime.
func WithLockOSThread(lock bool) LoopOption {
	return func(el *EventLoop) {
		el.lockThread = lock
	}
}

// WithCPU pins the loop thread to a logical CPU. Negative disables pinning.
// Pinning implies WithLockOSThread(true).
func WithCPU(cpu int) LoopOption {
	return func(el *EventLoop) {
		el.cpu = cpu
	}
}

// EventLoop is a single-use command loop.
type EventLoop struct {
	queue      *CommandQueue
	state      atomic.Int32
	stopCh     chan struct{}
	stopOnce   sync.Once
	doneCh     chan struct{}
	resources  map[Resource]struct{} // loop goroutine only
	executed   atomic.Uint64
	lockThread bool
	cpu        int
	logger     *log.Logger
	observer   Observer
}

// NewEventLoop creates a loop in StateUninitialized with a fresh queue.
func NewEventLoop(opts ...LoopOption) *EventLoop {
	el := &EventLoop{
		queue:      NewCommandQueue(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		resources:  make(map[Resource]struct{}),
		lockThread: true,
		cpu:        -1,
		logger:     log.New(io.Discard),
		observer:   noopObserver{},
	}
	for _, o := range opts {
		o(el)
	}
	return el
}

// State returns the current lifecycle state.
func (el *EventLoop) State() State {
	return State(el.state.Load())
}

// Done is closed once the loop goroutine has fully exited.
func (el *EventLoop) Done() <-chan struct{} {
	return el.doneCh
}

// Pending returns the number of commands waiting in the queue.
func (el *EventLoop) Pending() int {
	return el.queue.Len()
}

// Executed returns the number of commands run so far.
func (el *EventLoop) Executed() uint64 {
	return el.executed.Load()
}

// Start spawns the loop goroutine. It may be called once.
func (el *EventLoop) Start() error {
	if !el.state.CompareAndSwap(int32(StateUninitialized), int32(StateRunning)) {
		return fmt.Errorf("%w (state %s)", ErrLoopStarted, el.State())
	}
	el.observer.LoopStarted()
	el.logger.Debug("event loop starting")
	go el.run()
	return nil
}

// Push enqueues cmd for execution on the loop goroutine.
func (el *EventLoop) Push(cmd Command) error {
	if err := el.queue.Push(cmd); err != nil {
		return err
	}
	el.observer.CommandEnqueued(cmd.Kind())
	return nil
}

// Stop signals the loop to shut down and waits for its goroutine to exit.
// Commands pushed before Stop are executed first. Stop on a loop that was
// never started closes the queue and returns immediately.
func (el *EventLoop) Stop() {
	if el.state.CompareAndSwap(int32(StateUninitialized), int32(StateStopped)) {
		el.queue.Close()
		el.stopOnce.Do(func() { close(el.stopCh) })
		close(el.doneCh)
		return
	}
	el.stopOnce.Do(func() { close(el.stopCh) })
	<-el.doneCh
}

// Track registers r for forced close at shutdown. Loop goroutine only.
func (el *EventLoop) Track(r Resource) {
	el.resources[r] = struct{}{}
}

// Untrack forgets r. Loop goroutine only.
func (el *EventLoop) Untrack(r Resource) {
	delete(el.resources, r)
}

// Tracked returns the number of tracked resources. Loop goroutine only.
func (el *EventLoop) Tracked() int {
	return len(el.resources)
}

func (el *EventLoop) run() {
	if el.lockThread || el.cpu >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	if el.cpu >= 0 {
		if err := affinity.Pin(el.cpu); err != nil {
			el.logger.Warn("loop thread not pinned", "cpu", el.cpu, "err", err)
		}
	}
	defer close(el.doneCh)

	for {
		select {
		case <-el.stopCh:
			el.shutdown()
			return
		case <-el.queue.Ready():
			el.queue.Drain(el.execute)
			el.observer.QueueDepth(el.queue.Len())
		}
	}
}

// shutdown runs on the loop goroutine once the stop signal arrives.
func (el *EventLoop) shutdown() {
	el.state.Store(int32(StateStopping))
	el.logger.Debug("event loop stopping", "pending", el.queue.Len())

	// Queued teardown work runs before anything is forced closed.
	el.queue.Drain(el.execute)

	if n := len(el.resources); n > 0 {
		el.logger.Debug("closing stray resources", "count", n)
		for r := range el.resources {
			if err := r.Close(); err != nil {
				el.logger.Debug("close resource", "err", err)
			}
			delete(el.resources, r)
		}
	}

	// One more pass for commands raised by the closes above.
	el.queue.Drain(el.execute)
	el.queue.Close()
	el.queue.Drain(el.execute)

	el.state.Store(int32(StateStopped))
	el.observer.QueueDepth(0)
	el.observer.LoopStopped()
	el.logger.Debug("event loop stopped", "executed", el.executed.Load())
}

func (el *EventLoop) execute(cmd Command) {
	kind := cmd.Kind()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			el.observer.CommandPanicked(kind)
			el.logger.Error("command panicked", "kind", kind, "err", fmt.Errorf("%w: %v", ErrCommandPanic, r))
		}
		el.executed.Add(1)
		el.observer.CommandExecuted(kind, time.Since(start))
	}()
	cmd.Execute()
}
