// Package logger builds the structured loggers used across hioload-bridge.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options selects level, output format and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json, logfmt
	Output io.Writer
	Prefix string
}

// New returns a logger configured from opts. An empty level means info.
func New(opts Options) (*log.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	lvl := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		lvl = parsed
	}

	l := log.NewWithOptions(out, log.Options{
		Prefix:          opts.Prefix,
		Level:           lvl,
		ReportTimestamp: true,
	})
	switch strings.ToLower(opts.Format) {
	case "", "text":
		l.SetFormatter(log.TextFormatter)
	case "json":
		l.SetFormatter(log.JSONFormatter)
	case "logfmt":
		l.SetFormatter(log.LogfmtFormatter)
	default:
		return nil, fmt.Errorf("log format %q: unsupported", opts.Format)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
