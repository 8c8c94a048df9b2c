// Package echo is the demo Application served by the CLI: HTTP bodies and
// WebSocket messages are sent straight back. The /uri and /base64 routes
// transcode the request body.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package echo

import (
	"net/http"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/internal/uri"
)

// Sender is the slice of server.Runtime the echo app needs.
type Sender interface {
	SendMessage(h api.Handle, payload []byte, binary bool) error
}

// App echoes. Callbacks run on the loop, so bodies needs no lock.
type App struct {
	sender Sender
	logger *log.Logger
	bodies map[api.Handle][]byte
	ws     atomic.Int64
}

// New returns an App that replies through sender.
func New(sender Sender, logger *log.Logger) *App {
	return &App{sender: sender, logger: logger, bodies: make(map[api.Handle][]byte)}
}

// Connections returns the number of open WebSocket sessions.
func (a *App) Connections() int64 { return a.ws.Load() }

func (a *App) OnHeaders(api.Handle, *http.Request) *api.Response { return nil }

func (a *App) OnBodyData(conn api.Handle, chunk []byte) {
	a.bodies[conn] = append(a.bodies[conn], chunk...)
}

func (a *App) OnRequest(conn api.Handle, req *http.Request) *api.Response {
	body := a.bodies[conn]
	delete(a.bodies, conn)
	switch req.URL.Path {
	case "/":
		return text("hioload-bridge echo\n")
	case "/echo":
		h := http.Header{}
		if ct := req.Header.Get("Content-Type"); ct != "" {
			h.Set("Content-Type", ct)
		}
		return &api.Response{Status: http.StatusOK, Header: h, Body: body}
	case "/uri/encode":
		enc := uri.EncodeURIComponent
		if req.URL.Query().Has("full") {
			enc = uri.EncodeURI
		}
		return text(enc(string(body)))
	case "/uri/decode":
		dec := uri.DecodeURIComponent
		if req.URL.Query().Has("full") {
			dec = uri.DecodeURI
		}
		return text(dec(string(body)))
	case "/base64":
		return text(uri.Base64Encode(body))
	}
	return nil
}

func text(s string) *api.Response {
	return &api.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(s),
	}
}

func (a *App) OnWSOpen(conn api.Handle) {
	a.ws.Add(1)
	a.logger.Debug("websocket open", "conn", conn)
}

func (a *App) OnWSMessage(conn api.Handle, binary bool, data []byte) {
	if err := a.sender.SendMessage(conn, data, binary); err != nil {
		a.logger.Debug("echo send", "conn", conn, "err", err)
	}
}

func (a *App) OnWSClose(conn api.Handle) {
	a.ws.Add(-1)
	delete(a.bodies, conn)
	a.logger.Debug("websocket closed", "conn", conn)
}
