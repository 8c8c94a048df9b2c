//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

func pinPlatform(int) error { return ErrUnsupported }
