// File: server/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime is the caller-facing context: it owns the event loop, the handle
// table and the registry of live servers. Construct one per process (or per
// test) and pass it to every entry point.

package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/internal/handle"
	"github.com/momentics/hioload-bridge/pool"
)

// Runtime drives one event loop at a time.
//
// CreateServer, StopServer, StopServerWait and StopAllServers are
// serialized and must not be called from Application callbacks, which run
// on the loop. SendMessage, CloseConnection, Servers and ServerAddr are
// safe from any goroutine.
type Runtime struct {
	// lifecycle serializes operations that start, stop or wait on the loop.
	lifecycle sync.Mutex

	loop atomic.Pointer[concurrency.EventLoop]

	regMu    sync.RWMutex
	registry []api.Handle

	handles  *handle.Table
	payloads *pool.BytePool
	cfg      settings
	logger   *log.Logger
}

// New builds a Runtime. No goroutine is started until the first server.
func New(opts ...Option) *Runtime {
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.conn.Logger == nil {
		cfg.conn.Logger = cfg.logger
	}
	return &Runtime{
		handles:  handle.NewTable(),
		payloads: pool.NewBytePool(cfg.observer.PayloadOutstanding),
		cfg:      cfg,
		logger:   cfg.logger,
	}
}

// LoopState reports the current loop state; StateUninitialized when no
// loop exists.
func (r *Runtime) LoopState() concurrency.State {
	if el := r.loop.Load(); el != nil {
		return el.State()
	}
	return concurrency.StateUninitialized
}

// Servers returns the live registry in creation order.
func (r *Runtime) Servers() []api.Handle {
	r.regMu.RLock()
	defer r.regMu.RUnlock()
	return append([]api.Handle(nil), r.registry...)
}

// ServerAddr returns the bound address of a live server, which reveals the
// port chosen for an ephemeral bind.
func (r *Runtime) ServerAddr(h api.Handle) (net.Addr, error) {
	l, err := handle.Lookup[*listener](r.handles, h)
	if err != nil {
		return nil, err
	}
	return l.ln.Addr(), nil
}

// Resolve reports whether h names a live server or connection.
func (r *Runtime) Resolve(h api.Handle) error {
	_, err := r.handles.Internalize(h)
	return err
}

// PayloadStats exposes outbound payload accounting.
func (r *Runtime) PayloadStats() pool.Stats {
	return r.payloads.Stats()
}

// Snapshot is a point-in-time view for debug probes.
type Snapshot struct {
	LoopState     string   `json:"loop_state"`
	Pending       int      `json:"pending"`
	Executed      uint64   `json:"executed"`
	Servers       []string `json:"servers"`
	Handles       int      `json:"handles"`
	PayloadsInUse int64    `json:"payloads_in_use"`
}

// Snapshot collects the current state without touching the loop.
func (r *Runtime) Snapshot() Snapshot {
	s := Snapshot{
		LoopState:     r.LoopState().String(),
		Handles:       r.handles.Len(),
		PayloadsInUse: r.payloads.Stats().Outstanding(),
	}
	if el := r.loop.Load(); el != nil {
		s.Pending = el.Pending()
		s.Executed = el.Executed()
	}
	for _, h := range r.Servers() {
		s.Servers = append(s.Servers, h.String())
	}
	return s
}

// ensureLoop starts a fresh loop if none is running. Caller holds lifecycle.
func (r *Runtime) ensureLoop() (*concurrency.EventLoop, error) {
	if el := r.loop.Load(); el != nil {
		return el, nil
	}
	el := concurrency.NewEventLoop(
		concurrency.WithLoopLogger(r.logger.WithPrefix("loop")),
		concurrency.WithObserver(r.cfg.observer),
		concurrency.WithLockOSThread(r.cfg.lockOSThread),
		concurrency.WithCPU(r.cfg.cpu),
	)
	if err := el.Start(); err != nil {
		return nil, err
	}
	r.loop.Store(el)
	r.logger.Debug("event loop started")
	return el, nil
}

func (r *Runtime) register(h api.Handle) {
	r.regMu.Lock()
	r.registry = append(r.registry, h)
	r.regMu.Unlock()
}

func (r *Runtime) unregister(h api.Handle) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	for i, x := range r.registry {
		if x == h {
			r.registry = append(r.registry[:i], r.registry[i+1:]...)
			return
		}
	}
}
