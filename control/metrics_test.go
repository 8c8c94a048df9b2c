package control

import (
	"testing"
	"time"

	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_LoopObserver(t *testing.T) {
	m := NewMetrics(nil)
	m.CommandEnqueued(concurrency.KindSend)
	m.CommandEnqueued(concurrency.KindSend)
	m.CommandExecuted(concurrency.KindSend, time.Millisecond)
	m.CommandPanicked(concurrency.KindFunc)
	m.QueueDepth(7)
	m.LoopStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsEnqueued.WithLabelValues("send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsExecuted.WithLabelValues("send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandPanics.WithLabelValues("func")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loopRunning))

	m.LoopStopped()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.loopRunning))
}

func TestMetrics_RuntimeHooks(t *testing.T) {
	m := NewMetrics(nil)
	m.ServerBound()
	m.ServerBound()
	m.ServerClosed()
	m.ConnectionOpened()
	m.MessageSent(true, 10)
	m.MessageSent(false, 5)
	m.SendDropped()
	m.PayloadOutstanding(512)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.serversLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsOpen))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("binary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendDropped))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.payloadOutstanding))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	assert.Same(t, reg, m.Registry())

	// a second set on its own registry must not panic on duplicate names
	require.NotPanics(t, func() { NewMetrics(nil) })

	m.ServerBound()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_SatisfiesRuntimeObserver(t *testing.T) {
	var _ server.Observer = NewMetrics(nil)
}
