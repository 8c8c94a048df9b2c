// File: core/concurrency/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// State is the lifecycle state of an EventLoop.
//
//	StateUninitialized -> StateRunning   [Start]
//	StateRunning       -> StateStopping  [Stop]
//	StateStopping      -> StateStopped   [loop goroutine exit]
//
// A stopped loop is not restarted; the owner builds a new one.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
