// File: server/lifecycle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server creation and teardown. Creation is the only operation that waits
// for the loop; teardown is fire-and-forget unless StopServerWait is used.

package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/internal/handle"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	bindPending int32 = iota
	bindDelivered
	bindAbandoned
)

type bindResult struct {
	l   *listener
	err error
}

// bindRequest is the one-shot reply slot for a Bind command. Exactly one of
// deliver (loop) and abandon (caller) wins.
type bindRequest struct {
	state atomic.Int32
	reply chan bindResult
}

func newBindRequest() *bindRequest {
	return &bindRequest{reply: make(chan bindResult, 1)}
}

func (b *bindRequest) deliver(res bindResult) bool {
	if !b.state.CompareAndSwap(bindPending, bindDelivered) {
		return false
	}
	b.reply <- res
	return true
}

func (b *bindRequest) abandon() bool {
	return b.state.CompareAndSwap(bindPending, bindAbandoned)
}

type bindCommand struct {
	rt   *Runtime
	loop *concurrency.EventLoop
	spec api.BindSpec
	app  *appWrapper
	req  *bindRequest
}

func (c *bindCommand) Kind() concurrency.Kind { return concurrency.KindBind }

func (c *bindCommand) Execute() {
	var ln net.Listener
	delivered := false
	defer func() {
		if !delivered {
			// Execute panicked; unblock the caller before the loop logs it.
			if ln != nil {
				_ = ln.Close()
			}
			c.app.release(c.rt.logger)
			c.req.deliver(bindResult{err: concurrency.ErrCommandPanic})
		}
	}()

	ln, err := listenFunc(c.spec)
	if err != nil {
		c.app.release(c.rt.logger)
		delivered = true
		c.req.deliver(bindResult{err: err})
		return
	}
	l := newListener(c.rt, c.loop, ln, c.spec, c.app)
	c.loop.Track(l)
	c.rt.cfg.observer.ServerBound()
	go l.acceptLoop()

	delivered = true
	if !c.req.deliver(bindResult{l: l}) {
		l.logger.Debug("creation abandoned by caller, tearing down")
		l.Close()
	}
}

type teardownCommand struct {
	l   *listener
	ack chan struct{}
}

func (c *teardownCommand) Kind() concurrency.Kind { return concurrency.KindTeardown }

func (c *teardownCommand) Execute() {
	if c.ack != nil {
		defer close(c.ack)
	}
	c.l.Close()
}

// CreateServer binds spec on the loop and returns the server's handle.
// It blocks until the loop replies or ctx ends. A bind failure returns an
// error wrapping api.ErrBindFailed and leaves the registry unchanged; the
// application is then released (closed if it implements io.Closer).
func (r *Runtime) CreateServer(ctx context.Context, spec api.BindSpec, app api.Application) (api.Handle, error) {
	if app == nil {
		return api.Handle{}, api.ErrNilApplication
	}
	if err := spec.Validate(); err != nil {
		return api.Handle{}, err
	}

	ctx, span := r.cfg.tracer.Start(ctx, "server.CreateServer",
		trace.WithAttributes(
			attribute.String("bind.network", string(spec.Network)),
			attribute.String("bind.address", spec.Address()),
		))
	defer span.End()

	if r.cfg.createTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.createTimeout)
		defer cancel()
	}

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	loop, err := r.ensureLoop()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loop start failed")
		return api.Handle{}, err
	}

	req := newBindRequest()
	cmd := &bindCommand{rt: r, loop: loop, spec: spec, app: &appWrapper{Application: app}, req: req}
	if err := loop.Push(cmd); err != nil {
		return api.Handle{}, fmt.Errorf("%w: %w", api.ErrLoopNotRunning, err)
	}

	var res bindResult
	select {
	case res = <-req.reply:
	case <-ctx.Done():
		if req.abandon() {
			span.SetStatus(codes.Error, "abandoned")
			return api.Handle{}, ctx.Err()
		}
		// the loop replied at the same moment; honor the reply
		res = <-req.reply
	}

	if res.err != nil {
		r.cfg.observer.BindFailed()
		err := api.NewError(codeFor(res.err), "bind failed").
			WithContext("bind", spec.String()).
			Wrap(res.err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bind failed")
		r.logger.Warn("create server failed", "bind", spec, "err", res.err)
		return api.Handle{}, fmt.Errorf("%w: %w", api.ErrBindFailed, err)
	}

	h := r.handles.Externalize(res.l)
	r.register(h)
	span.SetAttributes(attribute.String("server.handle", h.String()))
	r.logger.Info("server created", "server", h, "addr", res.l.ln.Addr())
	return h, nil
}

// detach makes h unresolvable and drops it from the registry. Caller holds
// lifecycle.
func (r *Runtime) detach(h api.Handle) (*listener, error) {
	l, err := handle.Lookup[*listener](r.handles, h)
	if err != nil {
		return nil, err
	}
	if err := r.handles.Retire(h); err != nil {
		return nil, err
	}
	r.unregister(h)
	return l, nil
}

func (r *Runtime) stopLocked(ctx context.Context, h api.Handle, ack chan struct{}) error {
	_, span := r.cfg.tracer.Start(ctx, "server.StopServer",
		trace.WithAttributes(attribute.String("server.handle", h.String())))
	defer span.End()

	l, err := r.detach(h)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown handle")
		return err
	}
	if err := l.loop.Push(&teardownCommand{l: l, ack: ack}); err != nil {
		// Unreachable while the loop is running; the loop closes tracked
		// servers itself once stopped.
		r.logger.Warn("teardown not queued", "server", h, "err", err)
		if ack != nil {
			close(ack)
		}
	}
	r.logger.Info("server stopped", "server", h)
	return nil
}

// StopServer retires h immediately and queues the teardown. It returns
// before the socket is closed, so an immediate re-bind of the same address
// may fail; use StopServerWait when that matters.
func (r *Runtime) StopServer(h api.Handle) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.stopLocked(context.Background(), h, nil)
}

// StopServerWait is StopServer followed by a wait for the teardown to
// finish on the loop. On ctx expiry the teardown still completes later.
func (r *Runtime) StopServerWait(ctx context.Context, h api.Handle) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	ack := make(chan struct{})
	if err := r.stopLocked(ctx, h, ack); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAllServers stops every registered server in creation order, then
// stops and joins the loop. It is a no-op if no loop was ever started, and
// a later CreateServer starts a fresh loop.
func (r *Runtime) StopAllServers() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	el := r.loop.Load()
	if el == nil {
		return
	}
	for {
		servers := r.Servers()
		if len(servers) == 0 {
			break
		}
		if err := r.stopLocked(context.Background(), servers[0], nil); err != nil {
			// handle vanished underneath; drop it so the loop terminates
			r.unregister(servers[0])
		}
	}
	el.Stop()
	r.loop.Store(nil)
	r.logger.Info("all servers stopped")
}
