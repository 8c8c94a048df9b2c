package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt := New(append([]Option{WithLockOSThread(false)}, opts...)...)
	t.Cleanup(rt.StopAllServers)
	return rt
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func localTCP() api.BindSpec { return api.TCP("127.0.0.1", 0) }

func TestRuntime_EphemeralPortScenario(t *testing.T) {
	rt := newTestRuntime(t)
	h, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.Equal(t, concurrency.StateRunning, rt.LoopState())

	addr, err := rt.ServerAddr(h)
	require.NoError(t, err)
	assert.NotZero(t, addr.(*net.TCPAddr).Port)
	require.NoError(t, rt.Resolve(h))

	el := rt.loop.Load()
	require.NoError(t, rt.StopServer(h))
	assert.ErrorIs(t, rt.Resolve(h), api.ErrUnknownHandle)

	rt.StopAllServers()
	select {
	case <-el.Done():
	default:
		t.Fatal("loop goroutine still running after StopAllServers")
	}
	assert.Equal(t, concurrency.StateStopped, el.State())
	assert.Equal(t, concurrency.StateUninitialized, rt.LoopState())
}

func TestRuntime_RegistryTracksLiveServers(t *testing.T) {
	rt := newTestRuntime(t)
	var created []api.Handle
	for i := 0; i < 4; i++ {
		h, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
		require.NoError(t, err)
		created = append(created, h)
	}
	assert.Equal(t, created, rt.Servers())

	require.NoError(t, rt.StopServer(created[1]))
	require.NoError(t, rt.StopServer(created[3]))
	assert.Equal(t, []api.Handle{created[0], created[2]}, rt.Servers())

	rt.StopAllServers()
	assert.Empty(t, rt.Servers())
}

func TestRuntime_DoubleBindFails(t *testing.T) {
	rt := newTestRuntime(t)
	first, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
	addr, err := rt.ServerAddr(first)
	require.NoError(t, err)

	app := fake.NewApplication()
	h, err := rt.CreateServer(context.Background(), api.TCP("127.0.0.1", addr.(*net.TCPAddr).Port), app)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrBindFailed)
	assert.True(t, h.IsZero())
	assert.Equal(t, []api.Handle{first}, rt.Servers())

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrCodeAddressInUse, apiErr.Code)

	// the rejected application is released on the loop
	waitFor(t, func() bool { return app.Closed() == 1 })
}

func TestRuntime_StopTwiceAndWrongKind(t *testing.T) {
	rt := newTestRuntime(t)
	h, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)

	require.NoError(t, rt.StopServer(h))
	assert.ErrorIs(t, rt.StopServer(h), api.ErrUnknownHandle)
	assert.ErrorIs(t, rt.StopServer(api.Handle{}), api.ErrUnknownHandle)
	assert.ErrorIs(t, rt.StopServer(api.Handle{Index: 99, Gen: 1}), api.ErrUnknownHandle)
}

func TestRuntime_StopReleasesApplication(t *testing.T) {
	rt := newTestRuntime(t)
	app := fake.NewApplication()
	h, err := rt.CreateServer(context.Background(), localTCP(), app)
	require.NoError(t, err)
	require.NoError(t, rt.StopServerWait(context.Background(), h))
	assert.Equal(t, 1, app.Closed())
}

func TestRuntime_StopAllWithoutStartIsNoop(t *testing.T) {
	rt := New()
	before := runtime.NumGoroutine()
	rt.StopAllServers()
	rt.StopAllServers()
	assert.Nil(t, rt.loop.Load())
	assert.Equal(t, concurrency.StateUninitialized, rt.LoopState())
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestRuntime_RestartAfterStopAll(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
	first := rt.loop.Load()
	rt.StopAllServers()
	<-first.Done()

	h, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
	second := rt.loop.Load()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, concurrency.StateRunning, rt.LoopState())
	assert.Equal(t, []api.Handle{h}, rt.Servers())
}

func TestRuntime_StopServerWaitAllowsRebind(t *testing.T) {
	rt := newTestRuntime(t)
	h, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
	addr, err := rt.ServerAddr(h)
	require.NoError(t, err)
	port := addr.(*net.TCPAddr).Port

	require.NoError(t, rt.StopServerWait(context.Background(), h))
	h2, err := rt.CreateServer(context.Background(), api.TCP("127.0.0.1", port), fake.NewApplication())
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
}

func TestRuntime_CreateValidation(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.CreateServer(context.Background(), api.TCP("", 80), fake.NewApplication())
	assert.ErrorIs(t, err, api.ErrInvalidBindSpec)
	_, err = rt.CreateServer(context.Background(), api.TCP("127.0.0.1", 70000), fake.NewApplication())
	assert.ErrorIs(t, err, api.ErrInvalidBindSpec)
	_, err = rt.CreateServer(context.Background(), localTCP(), nil)
	assert.ErrorIs(t, err, api.ErrNilApplication)

	// nothing reached the loop
	assert.Nil(t, rt.loop.Load())
}

func TestRuntime_AbandonedCreateIsTornDown(t *testing.T) {
	rt := newTestRuntime(t)
	app := fake.NewApplication()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := rt.CreateServer(ctx, localTCP(), app)
	if err == nil {
		// the loop won the race; the server is live and owned by the caller
		assert.Equal(t, []api.Handle{h}, rt.Servers())
		return
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rt.Servers())
	waitFor(t, func() bool { return app.Closed() == 1 })
}

func TestRuntime_PipeServer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets with masks are not supported here")
	}
	dir, err := os.MkdirTemp("", "hb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	rt := newTestRuntime(t)
	h, err := rt.CreateServer(context.Background(), api.Pipe(path, 0o077), fake.NewApplication())
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, fi.Mode().Perm()&0o077, "group/other bits must be masked")

	addr, err := rt.ServerAddr(h)
	require.NoError(t, err)
	assert.Equal(t, "unix", addr.Network())

	// a second bind on the same path fails
	_, err = rt.CreateServer(context.Background(), api.Pipe(path, 0), fake.NewApplication())
	assert.ErrorIs(t, err, api.ErrBindFailed)

	require.NoError(t, rt.StopServerWait(context.Background(), h))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file is removed on close")
}

func TestRuntime_Snapshot(t *testing.T) {
	rt := newTestRuntime(t)
	assert.Equal(t, "uninitialized", rt.Snapshot().LoopState)

	h, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
	snap := rt.Snapshot()
	assert.Equal(t, "running", snap.LoopState)
	assert.Equal(t, []string{h.String()}, snap.Servers)
	assert.Equal(t, 1, snap.Handles)
}

func TestRuntime_CreateOnDeadLoopReportsClosedQueue(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)

	// the loop dies underneath the runtime
	rt.loop.Load().Stop()

	app := fake.NewApplication()
	h, err := rt.CreateServer(context.Background(), localTCP(), app)
	require.Error(t, err)
	assert.True(t, h.IsZero())
	assert.ErrorIs(t, err, api.ErrLoopNotRunning)
	assert.ErrorIs(t, err, api.ErrQueueClosed)
	assert.ErrorIs(t, err, concurrency.ErrQueueClosed)
	assert.Len(t, rt.Servers(), 1)
}

// addrlessListener binds for real but panics the server setup by reporting
// no address.
type addrlessListener struct {
	net.Listener
	closed chan struct{}
}

func (l *addrlessListener) Addr() net.Addr { return nil }

func (l *addrlessListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return l.Listener.Close()
}

func TestRuntime_PanicAfterBindClosesListener(t *testing.T) {
	var bound *addrlessListener
	listenFunc = func(spec api.BindSpec) (net.Listener, error) {
		ln, err := listen(spec)
		if err != nil {
			return nil, err
		}
		bound = &addrlessListener{Listener: ln, closed: make(chan struct{})}
		return bound, nil
	}
	t.Cleanup(func() { listenFunc = listen })

	rt := newTestRuntime(t)
	app := fake.NewApplication()
	_, err := rt.CreateServer(context.Background(), localTCP(), app)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrBindFailed)
	assert.ErrorIs(t, err, concurrency.ErrCommandPanic)
	assert.Empty(t, rt.Servers())
	assert.Equal(t, 1, app.Closed())

	require.NotNil(t, bound)
	select {
	case <-bound.closed:
	default:
		t.Fatal("listener bound before the panic was left open")
	}
	// the port is free again
	ln, err := net.Listen("tcp", bound.Listener.Addr().String())
	require.NoError(t, err)
	ln.Close()

	// the loop survived the panic
	listenFunc = listen
	_, err = rt.CreateServer(context.Background(), localTCP(), fake.NewApplication())
	require.NoError(t, err)
}
