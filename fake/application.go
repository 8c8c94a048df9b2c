// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-bridge/api"
)

// EventType names an Application callback.
type EventType int

const (
	EventHeaders EventType = iota
	EventBody
	EventRequest
	EventWSOpen
	EventWSMessage
	EventWSClose
)

// Event is one recorded callback.
type Event struct {
	Type   EventType
	Conn   api.Handle
	Method string
	Path   string
	Binary bool
	Data   []byte
}

// Application records every callback. Hooks, when set, decide responses;
// they run on the loop goroutine like the callbacks themselves.
type Application struct {
	HeadersFunc   func(conn api.Handle, req *http.Request) *api.Response
	RequestFunc   func(conn api.Handle, req *http.Request) *api.Response
	WSMessageFunc func(conn api.Handle, binary bool, data []byte)
	WSOpenFunc    func(conn api.Handle)

	mu     sync.Mutex
	events []Event
	notify chan Event
	closed atomic.Int32
}

// NewApplication returns an Application with no hooks.
func NewApplication() *Application {
	return &Application{notify: make(chan Event, 4096)}
}

func (a *Application) record(e Event) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
	select {
	case a.notify <- e:
	default:
	}
}

func (a *Application) OnHeaders(conn api.Handle, req *http.Request) *api.Response {
	a.record(Event{Type: EventHeaders, Conn: conn, Method: req.Method, Path: req.URL.Path})
	if a.HeadersFunc != nil {
		return a.HeadersFunc(conn, req)
	}
	return nil
}

func (a *Application) OnBodyData(conn api.Handle, chunk []byte) {
	a.record(Event{Type: EventBody, Conn: conn, Data: chunk})
}

func (a *Application) OnRequest(conn api.Handle, req *http.Request) *api.Response {
	a.record(Event{Type: EventRequest, Conn: conn, Method: req.Method, Path: req.URL.Path})
	if a.RequestFunc != nil {
		return a.RequestFunc(conn, req)
	}
	return nil
}

func (a *Application) OnWSOpen(conn api.Handle) {
	a.record(Event{Type: EventWSOpen, Conn: conn})
	if a.WSOpenFunc != nil {
		a.WSOpenFunc(conn)
	}
}

func (a *Application) OnWSMessage(conn api.Handle, binary bool, data []byte) {
	a.record(Event{Type: EventWSMessage, Conn: conn, Binary: binary, Data: data})
	if a.WSMessageFunc != nil {
		a.WSMessageFunc(conn, binary, data)
	}
}

func (a *Application) OnWSClose(conn api.Handle) {
	a.record(Event{Type: EventWSClose, Conn: conn})
}

// Close counts releases by the runtime.
func (a *Application) Close() error {
	a.closed.Add(1)
	return nil
}

// Closed returns how many times Close ran.
func (a *Application) Closed() int { return int(a.closed.Load()) }

// Events returns a copy of everything recorded so far.
func (a *Application) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.events...)
}

// Wait returns the next recorded event of type t, skipping others.
func (a *Application) Wait(t EventType, timeout time.Duration) (Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case e := <-a.notify:
			if e.Type == t {
				return e, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}

var _ api.Application = (*Application)(nil)
