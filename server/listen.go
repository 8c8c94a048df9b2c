// File: server/listen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/momentics/hioload-bridge/api"
)

// listenFunc is swapped by tests to inject failing listeners.
var listenFunc = listen

// listen binds spec. Loop only.
func listen(spec api.BindSpec) (net.Listener, error) {
	switch spec.Network {
	case api.NetworkTCP:
		var lc net.ListenConfig
		return lc.Listen(context.Background(), "tcp", spec.Address())
	case api.NetworkPipe:
		return listenPipe(spec.Path, spec.Mask)
	}
	return nil, api.ErrInvalidBindSpec
}

func codeFor(err error) api.ErrorCode {
	if errors.Is(err, syscall.EADDRINUSE) {
		return api.ErrCodeAddressInUse
	}
	if errors.Is(err, api.ErrInvalidBindSpec) {
		return api.ErrCodeInvalidArgument
	}
	return api.ErrCodeBind
}
