// File: server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// listener is the loop-owned server object. Only its accept goroutine runs
// elsewhere, and that goroutine does nothing but hand sockets to the loop.

package server

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/protocol"
)

// appWrapper holds the application for the loop and releases it once.
type appWrapper struct {
	api.Application
	released bool // loop
}

func (a *appWrapper) release(logger *log.Logger) {
	if a.released {
		return
	}
	a.released = true
	if c, ok := a.Application.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Debug("release application", "err", err)
		}
	}
}

type listener struct {
	rt     *Runtime
	loop   *concurrency.EventLoop
	ln     net.Listener
	spec   api.BindSpec
	app    *appWrapper
	logger *log.Logger

	// loop
	conns  map[*protocol.Conn]struct{}
	closed bool

	acceptDone chan struct{}
}

func newListener(rt *Runtime, loop *concurrency.EventLoop, ln net.Listener, spec api.BindSpec, app *appWrapper) *listener {
	return &listener{
		rt:         rt,
		loop:       loop,
		ln:         ln,
		spec:       spec,
		app:        app,
		logger:     rt.logger.With("server", ln.Addr().String()),
		conns:      make(map[*protocol.Conn]struct{}),
		acceptDone: make(chan struct{}),
	}
}

// Close tears the server down: listener, then every accepted connection,
// then the application. Loop only; idempotent. It doubles as the
// concurrency.Resource hook the loop uses for stray servers.
func (l *listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	err := l.ln.Close()
	for c := range l.conns {
		c.Close()
	}
	l.loop.Untrack(l)
	l.app.release(l.logger)
	l.rt.cfg.observer.ServerClosed()
	l.logger.Debug("server closed", "err", err)
	return err
}

// connClosed is the protocol.Conn close hook. Loop only.
func (l *listener) connClosed(c *protocol.Conn) {
	delete(l.conns, c)
	l.loop.Untrack(c)
	if err := l.rt.handles.Retire(c.Handle()); err != nil {
		l.logger.Debug("retire connection", "err", err)
	}
	l.rt.cfg.observer.ConnectionClosed()
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

func (l *listener) acceptLoop() {
	defer close(l.acceptDone)
	var backoff time.Duration
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Descriptor exhaustion and friends only cost this attempt.
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			l.logger.Warn("accept failed", "err", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		if err := l.loop.Push(&acceptCommand{l: l, nc: nc}); err != nil {
			nc.Close()
			return
		}
	}
}

// acceptCommand adopts a freshly accepted socket on the loop.
type acceptCommand struct {
	l  *listener
	nc net.Conn
}

func (c *acceptCommand) Kind() concurrency.Kind { return concurrency.KindAccept }

func (c *acceptCommand) Execute() {
	l := c.l
	if l.closed {
		c.nc.Close()
		return
	}
	conn := protocol.NewConn(c.nc, l.loop, l.app, l.rt.cfg.conn, l.connClosed)
	h := l.rt.handles.Externalize(conn)
	l.conns[conn] = struct{}{}
	l.loop.Track(conn)
	l.rt.cfg.observer.ConnectionOpened()
	conn.Start(h)
	l.logger.Debug("connection accepted", "conn", h, "remote", c.nc.RemoteAddr())
}
