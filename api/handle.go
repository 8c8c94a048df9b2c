// File: api/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opaque handles standing in for loop-owned servers and connections.

package api

import (
	"fmt"
	"strconv"
)

// Handle identifies a loop-owned object without exposing it. Index selects
// an arena slot and Gen must match the slot's current generation, so a
// handle stays invalid once its slot has been retired and reused.
//
// The zero Handle is never issued.
type Handle struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.Index == 0 && h.Gen == 0
}

// String returns the token form: 16 lowercase hex digits.
func (h Handle) String() string {
	return fmt.Sprintf("%08x%08x", h.Index, h.Gen)
}

// ParseHandle reverses Handle.String. It validates syntax only; whether the
// handle is live is for the issuing table to decide.
func ParseHandle(token string) (Handle, error) {
	if len(token) != 16 {
		return Handle{}, fmt.Errorf("%w: malformed token %q", ErrUnknownHandle, token)
	}
	idx, err := strconv.ParseUint(token[:8], 16, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: malformed token %q", ErrUnknownHandle, token)
	}
	gen, err := strconv.ParseUint(token[8:], 16, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: malformed token %q", ErrUnknownHandle, token)
	}
	return Handle{Index: uint32(idx), Gen: uint32(gen)}, nil
}
