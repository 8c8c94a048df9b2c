// File: api/bindspec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bind specifications for listening endpoints.

package api

import (
	"fmt"
	"net"
	"strconv"
)

// Network selects the listening transport.
type Network string

const (
	NetworkTCP  Network = "tcp"
	NetworkPipe Network = "unix"
)

// BindSpec describes where a server listens: either a TCP host/port pair or
// a local (unix-domain) endpoint with an access mask applied at bind time.
type BindSpec struct {
	Network Network
	Host    string
	Port    int
	Path    string
	Mask    uint32
}

// TCP returns a BindSpec for host:port. Port 0 asks for an ephemeral port.
func TCP(host string, port int) BindSpec {
	return BindSpec{Network: NetworkTCP, Host: host, Port: port}
}

// Pipe returns a BindSpec for a unix-domain socket at path. mask is a umask
// applied while the socket file is created (e.g. 0o077 for owner-only).
func Pipe(path string, mask uint32) BindSpec {
	return BindSpec{Network: NetworkPipe, Path: path, Mask: mask}
}

// Validate performs the light, caller-side checks. Whether the address can
// actually be bound is only known on the loop.
func (b BindSpec) Validate() error {
	switch b.Network {
	case NetworkTCP:
		if b.Host == "" {
			return fmt.Errorf("%w: empty host", ErrInvalidBindSpec)
		}
		if b.Port < 0 || b.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidBindSpec, b.Port)
		}
	case NetworkPipe:
		if b.Path == "" {
			return fmt.Errorf("%w: empty pipe path", ErrInvalidBindSpec)
		}
		if b.Mask > 0o777 {
			return fmt.Errorf("%w: mask %#o out of range", ErrInvalidBindSpec, b.Mask)
		}
	default:
		return fmt.Errorf("%w: unknown network %q", ErrInvalidBindSpec, b.Network)
	}
	return nil
}

// Address returns the address string passed to net.Listen.
func (b BindSpec) Address() string {
	if b.Network == NetworkPipe {
		return b.Path
	}
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// String implements fmt.Stringer.
func (b BindSpec) String() string {
	return string(b.Network) + "://" + b.Address()
}
