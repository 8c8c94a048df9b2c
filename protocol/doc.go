// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP/1.1 and WebSocket handling over loop-owned connections.
//
// Each Conn has one reader goroutine that parses requests and frames and
// hands every event to the event loop. Application callbacks and all writes
// happen on the loop goroutine; the reader never writes to the socket.
package protocol
