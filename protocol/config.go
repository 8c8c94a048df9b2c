// File: protocol/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Config holds per-connection limits.
type Config struct {
	// WriteTimeout bounds each write performed on the loop.
	WriteTimeout time.Duration
	// ReadLimit caps a single WebSocket message; 0 disables the cap.
	ReadLimit int64
	// BodyChunkSize is the largest slice passed to OnBodyData.
	BodyChunkSize int
	// MaxHeaderBytes caps the request line plus headers.
	MaxHeaderBytes int
	Logger         *log.Logger
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadLimit:      16 << 20,
		BodyChunkSize:  32 << 10,
		MaxHeaderBytes: 1 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadLimit < 0 {
		c.ReadLimit = 0
	}
	if c.BodyChunkSize <= 0 {
		c.BodyChunkSize = d.BodyChunkSize
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
	return c
}
