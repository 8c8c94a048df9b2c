// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning for the calling OS thread. The caller must hold the thread via
// runtime.LockOSThread or the pin leaks onto whatever goroutine runs next.

package affinity

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned where the platform cannot pin threads.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// Pin restricts the current OS thread to logical CPU cpu.
func Pin(cpu int) error {
	if cpu < 0 || cpu >= runtime.NumCPU() {
		return fmt.Errorf("affinity: cpu %d out of range [0,%d)", cpu, runtime.NumCPU())
	}
	return pinPlatform(cpu)
}
