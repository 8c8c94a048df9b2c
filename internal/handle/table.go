// File: internal/handle/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Table maps loop-owned objects to generation-checked handles. It never owns
// the objects: retiring a handle only makes it unresolvable.

package handle

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-bridge/api"
)

type slot struct {
	gen  uint32
	obj  any
	live bool
}

// Table is an arena of slots indexed by api.Handle. Index 0 is reserved so
// the zero Handle never resolves.
type Table struct {
	mu      sync.RWMutex
	slots   []slot
	free    []uint32
	reverse map[any]api.Handle
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		slots:   make([]slot, 1),
		reverse: make(map[any]api.Handle),
	}
}

// Externalize returns the live handle for obj, issuing one if needed.
// obj must be comparable (typically a pointer).
func (t *Table) Externalize(obj any) api.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.reverse[obj]; ok {
		return h
	}

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		idx = uint32(len(t.slots) - 1)
	}
	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.obj = obj
	s.live = true

	h := api.Handle{Index: idx, Gen: s.gen}
	t.reverse[obj] = h
	return h
}

// Internalize resolves h. Unknown, retired and stale handles all fail with
// api.ErrUnknownHandle.
func (t *Table) Internalize(h api.Handle) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.obj, nil
}

func (t *Table) lookup(h api.Handle) (*slot, error) {
	if h.Index == 0 || int(h.Index) >= len(t.slots) {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownHandle, h)
	}
	s := &t.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownHandle, h)
	}
	return s, nil
}

// Retire invalidates h. The slot is recycled with a new generation.
func (t *Table) Retire(h api.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	delete(t.reverse, s.obj)
	s.obj = nil
	s.live = false
	t.free = append(t.free, h.Index)
	return nil
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.reverse)
}

// Lookup resolves h and asserts the object type. A handle of the wrong kind
// is reported as unknown, so a connection token can never stop a server.
func Lookup[T any](t *Table, h api.Handle) (T, error) {
	var zero T
	obj, err := t.Internalize(h)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has kind %T", api.ErrUnknownHandle, h, obj)
	}
	return v, nil
}
