//go:build !(linux || darwin || freebsd || netbsd || openbsd)

// File: server/listen_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "net"

// listenPipe binds a unix-domain socket; the mask is not applied here.
func listenPipe(path string, _ uint32) (net.Listener, error) {
	return net.Listen("unix", path)
}
