// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrQueueClosed indicates a push after the loop has stopped for good.
	ErrQueueClosed = errors.New("command queue is closed")

	// ErrLoopStarted indicates Start was called on a loop that already ran.
	ErrLoopStarted = errors.New("event loop already started")

	// ErrCommandPanic wraps a recovered panic from a command body.
	ErrCommandPanic = errors.New("command panicked")
)
