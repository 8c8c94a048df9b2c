//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func pinPlatform(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	// pid 0 targets the calling thread.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}
