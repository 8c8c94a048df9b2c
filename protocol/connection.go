// File: protocol/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn is one accepted connection. Fields marked "loop" are touched only on
// the event loop goroutine; the reader goroutine communicates with the loop
// exclusively through pushed commands.

package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// Pusher moves work onto the event loop.
type Pusher interface {
	Push(cmd concurrency.Command) error
}

// Conn is a loop-owned HTTP connection that may upgrade to WebSocket.
type Conn struct {
	nc      net.Conn
	br      *bufio.Reader
	limiter *headerLimiter
	loop    Pusher
	app     api.Application
	cfg     Config
	logger  *log.Logger
	handle  api.Handle

	// closing is closed on the loop when the connection shuts down; the
	// reader selects on it while waiting for loop replies.
	closing chan struct{}

	// loop
	bw       *bufio.Writer
	ws       *websocket.Conn
	closed   bool
	onClosed func(*Conn)
}

// NewConn wraps nc. onClosed runs on the loop exactly once, after the
// socket is closed and OnWSClose (if any) has fired.
func NewConn(nc net.Conn, loop Pusher, app api.Application, cfg Config, onClosed func(*Conn)) *Conn {
	cfg = cfg.withDefaults()
	lim := &headerLimiter{r: nc}
	return &Conn{
		nc:       nc,
		br:       bufio.NewReaderSize(lim, 4096),
		limiter:  lim,
		loop:     loop,
		app:      app,
		cfg:      cfg,
		logger:   cfg.Logger,
		closing:  make(chan struct{}),
		bw:       bufio.NewWriterSize(nc, 4096),
		onClosed: onClosed,
	}
}

// Start assigns the connection handle and launches the reader. Loop only.
func (c *Conn) Start(h api.Handle) {
	c.handle = h
	c.logger = c.cfg.Logger.With("conn", h.String())
	go c.readLoop()
}

// Handle returns the handle passed to Start.
func (c *Conn) Handle() api.Handle { return c.handle }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// IsWebSocket reports whether the upgrade completed. Loop only.
func (c *Conn) IsWebSocket() bool { return c.ws != nil }

// Closed reports whether Close has run. Loop only.
func (c *Conn) Closed() bool { return c.closed }

// WriteMessage writes one WebSocket message. Loop only.
func (c *Conn) WriteMessage(binary bool, data []byte) error {
	if c.closed {
		return api.ErrConnectionClosed
	}
	if c.ws == nil {
		return fmt.Errorf("%w: not a websocket", api.ErrConnectionClosed)
	}
	mt := websocket.TextMessage
	if binary {
		mt = websocket.BinaryMessage
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(mt, data)
}

// Close shuts the connection down. Loop only; repeated calls are no-ops.
// WebSocket peers receive a normal-closure frame first.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closing)

	if c.ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
	}
	err := c.nc.Close()
	if c.ws != nil {
		c.app.OnWSClose(c.handle)
	}
	if c.onClosed != nil {
		c.onClosed(c)
	}
	c.logger.Debug("connection closed")
	return err
}

// deliver runs fn on the loop unless the connection has closed by then.
func (c *Conn) deliver(fn func()) bool {
	err := c.loop.Push(concurrency.Event(func() {
		if !c.closed {
			fn()
		}
	}))
	return err == nil
}

// call runs fn on the loop and waits for its result. It reports false when
// the connection closed first or the loop is gone. A panicking fn closes
// the connection; the loop logs the panic.
func call[T any](c *Conn, fn func() T) (T, bool) {
	res := make(chan T, 1)
	err := c.loop.Push(concurrency.Event(func() {
		if c.closed {
			return
		}
		done := false
		defer func() {
			if !done {
				c.Close()
			}
		}()
		res <- fn()
		done = true
	}))
	var zero T
	if err != nil {
		return zero, false
	}
	select {
	case v := <-res:
		return v, true
	case <-c.closing:
		return zero, false
	}
}

// readLoop is the per-connection reader goroutine.
func (c *Conn) readLoop() {
	defer func() {
		// Push fails only once the loop has stopped; it closes tracked
		// connections itself.
		_ = c.loop.Push(concurrency.Event(func() { c.Close() }))
	}()

	for {
		c.limiter.limit(int64(c.cfg.MaxHeaderBytes) + int64(c.br.Size()))
		req, err := http.ReadRequest(c.br)
		c.limiter.unlimit()
		if err != nil {
			if !isClosedErr(err) {
				c.logger.Debug("bad request", "err", err)
				status := http.StatusBadRequest
				if errors.Is(err, errHeaderTooLarge) {
					status = http.StatusRequestHeaderFieldsTooLarge
				}
				c.respond(nil, &api.Response{Status: status}, true)
			}
			return
		}
		if !c.serveRequest(req) {
			return
		}
	}
}

// serveRequest feeds one request through the callbacks and reports
// whether the connection stays open for another request.
func (c *Conn) serveRequest(req *http.Request) bool {
	h := c.handle
	early, ok := call(c, func() *api.Response { return c.app.OnHeaders(h, req) })
	if !ok {
		return false
	}
	if early != nil {
		c.respond(req, early, true)
		return false
	}

	if websocket.IsWebSocketUpgrade(req) {
		ws := c.upgrade(req)
		if ws == nil {
			return false
		}
		c.readMessages(ws)
		return false
	}

	if !c.streamBody(req) {
		return false
	}
	resp, ok := call(c, func() *api.Response { return c.app.OnRequest(h, req) })
	if !ok {
		return false
	}
	if resp == nil {
		resp = &api.Response{Status: http.StatusNotFound}
	}
	if !c.respond(req, resp, req.Close) {
		return false
	}
	return !req.Close
}

// streamBody hands the request body to OnBodyData in chunks. Each chunk is
// a fresh slice owned by the callee.
func (c *Conn) streamBody(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody {
		return true
	}
	defer req.Body.Close()
	h := c.handle
	buf := make([]byte, c.cfg.BodyChunkSize)
	for {
		n, err := req.Body.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !c.deliver(func() { c.app.OnBodyData(h, chunk) }) {
				return false
			}
		}
		if err == io.EOF {
			return true
		}
		if err != nil {
			c.logger.Debug("read body", "err", err)
			return false
		}
	}
}

// respond writes resp on the loop and waits for the write to finish.
func (c *Conn) respond(req *http.Request, resp *api.Response, closeAfter bool) bool {
	ok, delivered := call(c, func() bool {
		if err := c.writeResponse(req, resp, closeAfter); err != nil {
			c.logger.Debug("write response", "err", err)
			return false
		}
		return true
	})
	return ok && delivered
}

// readMessages runs after a successful upgrade until the peer goes away.
func (c *Conn) readMessages(ws *websocket.Conn) {
	h := c.handle
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !isClosedErr(err) {
				c.logger.Debug("websocket read", "err", err)
			}
			return
		}
		binary := mt == websocket.BinaryMessage
		if !c.deliver(func() { c.app.OnWSMessage(h, binary, data) }) {
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe)
}
