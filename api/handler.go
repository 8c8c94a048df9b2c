// File: api/handler.go
// Package api defines the Application callback contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "net/http"

// Response is an HTTP response produced by an Application.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Application is the set of callbacks a server dispatches into. All six are
// invoked on the loop goroutine, one at a time, with the handle of the
// connection they concern. Callbacks may call SendMessage/CloseConnection
// but must not create or stop servers.
//
// If an Application also implements io.Closer it is closed on the loop when
// its server is torn down or fails to bind.
type Application interface {
	// OnHeaders runs once the request line and headers are parsed. A non-nil
	// response is written immediately and the request is not processed further.
	OnHeaders(conn Handle, req *http.Request) *Response

	// OnBodyData receives the request body in chunks. The slice is owned by
	// the callee.
	OnBodyData(conn Handle, chunk []byte)

	// OnRequest runs after the body is consumed and returns the response.
	// A nil response yields 404.
	OnRequest(conn Handle, req *http.Request) *Response

	OnWSOpen(conn Handle)
	OnWSMessage(conn Handle, binary bool, data []byte)
	OnWSClose(conn Handle)
}
