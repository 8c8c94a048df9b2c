// File: core/concurrency/command.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Commands are the unit of work moved from callers onto the loop goroutine.

package concurrency

// Kind tags a Command variant for logging and metrics.
type Kind uint8

const (
	KindFunc Kind = iota
	KindBind
	KindTeardown
	KindAccept
	KindSend
	KindClose
	KindEvent
)

var kindNames = [...]string{
	KindFunc:     "func",
	KindBind:     "bind",
	KindTeardown: "teardown",
	KindAccept:   "accept",
	KindSend:     "send",
	KindClose:    "close",
	KindEvent:    "event",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Command is a deferred action executed exactly once on the loop goroutine.
// Implementations carry their arguments by value and must not be mutated
// after Push.
type Command interface {
	Kind() Kind
	Execute()
}

// Func adapts a plain closure to Command.
type Func func()

func (f Func) Kind() Kind { return KindFunc }
func (f Func) Execute()   { f() }

// Event adapts a closure raised by an I/O source (accept or reader goroutine).
type Event func()

func (e Event) Kind() Kind { return KindEvent }
func (e Event) Execute()   { e() }
