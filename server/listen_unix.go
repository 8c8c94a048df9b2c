//go:build linux || darwin || freebsd || netbsd || openbsd

// File: server/listen_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net"

	"golang.org/x/sys/unix"
)

// listenPipe creates a unix-domain socket with mask applied as the umask
// for the duration of the bind. The umask is process-wide; binds are
// serialized on the loop so they never interleave with each other.
func listenPipe(path string, mask uint32) (net.Listener, error) {
	old := unix.Umask(int(mask))
	defer unix.Umask(old)
	return net.Listen("unix", path)
}
