package echo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	conn   api.Handle
	data   []byte
	binary bool
}

type recordingSender struct{ msgs []sent }

func (r *recordingSender) SendMessage(h api.Handle, payload []byte, binary bool) error {
	r.msgs = append(r.msgs, sent{h, payload, binary})
	return nil
}

func TestApp_EchoesBody(t *testing.T) {
	app := New(&recordingSender{}, logger.Discard())
	conn := api.Handle{Index: 1, Gen: 1}
	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set("Content-Type", "application/json")

	assert.Nil(t, app.OnHeaders(conn, req))
	app.OnBodyData(conn, []byte(`{"a":`))
	app.OnBodyData(conn, []byte(`1}`))
	resp := app.OnRequest(conn, req)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `{"a":1}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	// body buffer is per request
	resp = app.OnRequest(conn, req)
	assert.Empty(t, resp.Body)
}

func TestApp_Routes(t *testing.T) {
	app := New(&recordingSender{}, logger.Discard())
	conn := api.Handle{Index: 1, Gen: 1}
	assert.Equal(t, http.StatusOK, app.OnRequest(conn, httptest.NewRequest(http.MethodGet, "/", nil)).Status)
	assert.Nil(t, app.OnRequest(conn, httptest.NewRequest(http.MethodGet, "/other", nil)))
}

func TestApp_WebSocketEcho(t *testing.T) {
	s := &recordingSender{}
	app := New(s, logger.Discard())
	conn := api.Handle{Index: 2, Gen: 7}

	app.OnWSOpen(conn)
	assert.Equal(t, int64(1), app.Connections())
	app.OnWSMessage(conn, true, []byte{9})
	app.OnWSMessage(conn, false, []byte("hi"))
	app.OnWSClose(conn)
	assert.Equal(t, int64(0), app.Connections())

	require.Len(t, s.msgs, 2)
	assert.Equal(t, sent{conn, []byte{9}, true}, s.msgs[0])
	assert.Equal(t, sent{conn, []byte("hi"), false}, s.msgs[1])
}

func TestApp_TranscodeRoutes(t *testing.T) {
	app := New(&recordingSender{}, logger.Discard())
	conn := api.Handle{Index: 3, Gen: 1}

	do := func(target, body string) string {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		app.OnBodyData(conn, []byte(body))
		resp := app.OnRequest(conn, req)
		require.NotNil(t, resp)
		return string(resp.Body)
	}
	assert.Equal(t, "a%20b%2Fc", do("/uri/encode", "a b/c"))
	assert.Equal(t, "a%20b/c", do("/uri/encode?full", "a b/c"))
	assert.Equal(t, "a b/c", do("/uri/decode", "a%20b%2Fc"))
	assert.Equal(t, "a b%2Fc", do("/uri/decode?full", "a%20b%2Fc"))
	assert.Equal(t, "aGk=", do("/base64", "hi"))
}
