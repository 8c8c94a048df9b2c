// File: server/options.go
// Package server defines functional options for the Runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/momentics/hioload-bridge/server"

// Observer receives runtime telemetry in addition to loop telemetry.
// Methods are called from both the caller and the loop goroutine.
type Observer interface {
	concurrency.Observer
	ServerBound()
	ServerClosed()
	BindFailed()
	ConnectionOpened()
	ConnectionClosed()
	MessageSent(binary bool, n int)
	SendDropped()
	PayloadOutstanding(n int64)
}

type noopObserver struct{}

func (noopObserver) CommandEnqueued(concurrency.Kind)                {}
func (noopObserver) CommandExecuted(concurrency.Kind, time.Duration) {}
func (noopObserver) CommandPanicked(concurrency.Kind)                {}
func (noopObserver) QueueDepth(int)                                  {}
func (noopObserver) LoopStarted()                                    {}
func (noopObserver) LoopStopped()                                    {}
func (noopObserver) ServerBound()                                    {}
func (noopObserver) ServerClosed()                                   {}
func (noopObserver) BindFailed()                                     {}
func (noopObserver) ConnectionOpened()                               {}
func (noopObserver) ConnectionClosed()                               {}
func (noopObserver) MessageSent(bool, int)                           {}
func (noopObserver) SendDropped()                                    {}
func (noopObserver) PayloadOutstanding(int64)                        {}

type settings struct {
	logger        *log.Logger
	observer      Observer
	tracer        trace.Tracer
	lockOSThread  bool
	cpu           int
	createTimeout time.Duration
	conn          protocol.Config
}

func defaultSettings() settings {
	return settings{
		logger:       log.New(io.Discard),
		observer:     noopObserver{},
		tracer:       otel.Tracer(tracerName),
		lockOSThread: true,
		cpu:          -1,
		conn:         protocol.DefaultConfig(),
	}
}

// Option customizes a Runtime.
type Option func(*settings)

// WithLogger sets the logger shared by the runtime, loop and connections.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver attaches a telemetry sink such as control.Metrics.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLockOSThread controls whether the loop goroutine is pinned.
func WithLockOSThread(lock bool) Option {
	return func(s *settings) {
		s.lockOSThread = lock
	}
}

// WithLoopCPU pins the loop thread to a logical CPU. Negative disables it.
func WithLoopCPU(cpu int) Option {
	return func(s *settings) {
		s.cpu = cpu
	}
}

// WithCreateTimeout bounds CreateServer's wait for the loop in addition to
// the caller's context. Zero disables it.
func WithCreateTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.createTimeout = d
	}
}

// WithConnConfig sets per-connection limits.
func WithConnConfig(c protocol.Config) Option {
	return func(s *settings) {
		s.conn = c
	}
}
