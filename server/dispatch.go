// File: server/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound message dispatch. Both operations resolve the handle on the
// caller and return at once; write and close failures stay on the loop.

package server

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/internal/handle"
	"github.com/momentics/hioload-bridge/protocol"
)

// sendCommand owns its payload copy and returns it to the pool after the
// write, whatever the outcome.
type sendCommand struct {
	rt     *Runtime
	conn   *protocol.Conn
	data   []byte
	binary bool
}

func (c *sendCommand) Kind() concurrency.Kind { return concurrency.KindSend }

func (c *sendCommand) Execute() {
	defer c.rt.payloads.Put(c.data)
	n := len(c.data)
	if err := c.conn.WriteMessage(c.binary, c.data); err != nil {
		c.rt.cfg.observer.SendDropped()
		if !errors.Is(err, api.ErrConnectionClosed) {
			c.rt.logger.Debug("send failed, closing", "conn", c.conn.Handle(), "err", err)
			c.conn.Close()
		}
		return
	}
	c.rt.cfg.observer.MessageSent(c.binary, n)
}

type closeCommand struct {
	conn *protocol.Conn
}

func (c *closeCommand) Kind() concurrency.Kind { return concurrency.KindClose }
func (c *closeCommand) Execute()                { c.conn.Close() }

func (r *Runtime) resolveConn(h api.Handle) (*protocol.Conn, *concurrency.EventLoop, error) {
	conn, err := handle.Lookup[*protocol.Conn](r.handles, h)
	if err != nil {
		return nil, nil, err
	}
	el := r.loop.Load()
	if el == nil {
		return nil, nil, api.ErrLoopNotRunning
	}
	return conn, el, nil
}

// SendMessage queues payload for the WebSocket connection h. The payload is
// copied before returning, so the caller may reuse it immediately.
func (r *Runtime) SendMessage(h api.Handle, payload []byte, binary bool) error {
	conn, el, err := r.resolveConn(h)
	if err != nil {
		return err
	}
	buf := r.payloads.Copy(payload)
	if err := el.Push(&sendCommand{rt: r, conn: conn, data: buf, binary: binary}); err != nil {
		r.payloads.Put(buf)
		return fmt.Errorf("%w: %w", api.ErrLoopNotRunning, err)
	}
	return nil
}

// CloseConnection queues a close for connection h. The handle stays
// resolvable until the loop has closed the connection.
func (r *Runtime) CloseConnection(h api.Handle) error {
	conn, el, err := r.resolveConn(h)
	if err != nil {
		return err
	}
	if err := el.Push(&closeCommand{conn: conn}); err != nil {
		return fmt.Errorf("%w: %w", api.ErrLoopNotRunning, err)
	}
	return nil
}
