// File: protocol/upgrader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket upgrade for a request already parsed by the reader. The
// handshake runs on the loop through gorilla's Upgrader, fed a
// ResponseWriter that hands over the raw connection on Hijack.

package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/momentics/hioload-bridge/api"
)

// upgradeWriter is the minimal http.ResponseWriter gorilla needs. Error
// responses written before the hijack are buffered and replayed by the
// caller.
type upgradeWriter struct {
	nc       net.Conn
	brw      *bufio.ReadWriter
	header   http.Header
	status   int
	body     bytes.Buffer
	hijacked bool
}

func (w *upgradeWriter) Header() http.Header { return w.header }

func (w *upgradeWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *upgradeWriter) Write(p []byte) (int, error) {
	if w.hijacked {
		return 0, http.ErrHijacked
	}
	w.WriteHeader(http.StatusOK)
	return w.body.Write(p)
}

func (w *upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked {
		return nil, nil, http.ErrHijacked
	}
	w.hijacked = true
	return w.nc, w.brw, nil
}

func (w *upgradeWriter) response() *api.Response {
	status := w.status
	if status == 0 {
		status = http.StatusBadRequest
	}
	return &api.Response{Status: status, Header: w.header, Body: w.body.Bytes()}
}

var errUpgradeRejected = errors.New("websocket upgrade rejected")

func (c *Conn) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: c.cfg.WriteTimeout,
		// Origin policy belongs to the application's OnHeaders.
		CheckOrigin: func(*http.Request) bool { return true },
	}
}

// upgrade completes the handshake on the loop and fires OnWSOpen. It
// returns nil if the handshake failed or the connection closed meanwhile.
func (c *Conn) upgrade(req *http.Request) *websocket.Conn {
	h := c.handle
	ws, _ := call(c, func() *websocket.Conn {
		w := &upgradeWriter{
			nc:     c.nc,
			brw:    bufio.NewReadWriter(c.br, c.bw),
			header: make(http.Header),
		}
		ws, err := c.upgrader().Upgrade(w, req, nil)
		if err != nil {
			c.logger.Debug("upgrade", "err", errors.Join(errUpgradeRejected, err))
			if !w.hijacked {
				_ = c.writeResponse(req, w.response(), true)
			}
			c.Close()
			return nil
		}
		if c.cfg.ReadLimit > 0 {
			ws.SetReadLimit(c.cfg.ReadLimit)
		}
		c.ws = ws
		c.app.OnWSOpen(h)
		return ws
	})
	return ws
}
