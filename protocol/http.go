// File: protocol/http.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/momentics/hioload-bridge/api"
)

var errHeaderTooLarge = errors.New("request header too large")

// headerLimiter caps how much the request parser may consume. Body reads
// run unlimited.
type headerLimiter struct {
	r         io.Reader
	remaining int64
	limited   bool
}

func (l *headerLimiter) limit(n int64) {
	l.remaining = n
	l.limited = true
}

func (l *headerLimiter) unlimit() { l.limited = false }

func (l *headerLimiter) Read(p []byte) (int, error) {
	if !l.limited {
		return l.r.Read(p)
	}
	if l.remaining <= 0 {
		return 0, errHeaderTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// writeResponse serializes resp to the socket. Loop only.
func (c *Conn) writeResponse(req *http.Request, resp *api.Response, closeAfter bool) error {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	r := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(resp.Body)),
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		Close:         closeAfter,
	}
	// Without a request the writer always emits Content-Length, which keeps
	// empty responses delimited. HEAD needs the request to suppress the body.
	if req != nil && req.Method == http.MethodHead {
		r.Request = req
	}
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := r.Write(c.bw); err != nil {
		return err
	}
	return c.bw.Flush()
}
