package handle

import (
	"testing"

	"github.com/momentics/hioload-bridge/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct{ name string }

func TestTable_ExternalizeIsStable(t *testing.T) {
	tbl := NewTable()
	a, b := &object{"a"}, &object{"b"}

	ha := tbl.Externalize(a)
	hb := tbl.Externalize(b)
	assert.NotEqual(t, ha, hb)
	assert.Equal(t, ha, tbl.Externalize(a), "same object must map to the same handle")
	assert.False(t, ha.IsZero())
	assert.Equal(t, 2, tbl.Len())

	got, err := Lookup[*object](tbl, hb)
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestTable_RetiredHandleFails(t *testing.T) {
	tbl := NewTable()
	a := &object{"a"}
	h := tbl.Externalize(a)
	require.NoError(t, tbl.Retire(h))

	_, err := tbl.Internalize(h)
	assert.ErrorIs(t, err, api.ErrUnknownHandle)
	assert.ErrorIs(t, tbl.Retire(h), api.ErrUnknownHandle, "double retire must fail")
	assert.Equal(t, "a", a.name, "table never touches the object")
}

func TestTable_ReusedSlotRejectsStaleGeneration(t *testing.T) {
	tbl := NewTable()
	old := tbl.Externalize(&object{"old"})
	require.NoError(t, tbl.Retire(old))

	fresh := tbl.Externalize(&object{"new"})
	assert.Equal(t, old.Index, fresh.Index, "slot should be recycled")
	assert.NotEqual(t, old.Gen, fresh.Gen)

	_, err := tbl.Internalize(old)
	assert.ErrorIs(t, err, api.ErrUnknownHandle)
	obj, err := Lookup[*object](tbl, fresh)
	require.NoError(t, err)
	assert.Equal(t, "new", obj.name)
}

func TestTable_UnknownAndWrongKind(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Internalize(api.Handle{})
	assert.ErrorIs(t, err, api.ErrUnknownHandle)
	_, err = tbl.Internalize(api.Handle{Index: 42, Gen: 1})
	assert.ErrorIs(t, err, api.ErrUnknownHandle)

	h := tbl.Externalize(&object{"x"})
	_, err = Lookup[*struct{}](tbl, h)
	assert.ErrorIs(t, err, api.ErrUnknownHandle)
}

func TestTable_TokenRoundTrip(t *testing.T) {
	tbl := NewTable()
	h := tbl.Externalize(&object{"x"})
	parsed, err := api.ParseHandle(h.String())
	require.NoError(t, err)
	_, err = tbl.Internalize(parsed)
	require.NoError(t, err)

	_, err = api.ParseHandle("not-a-token")
	assert.ErrorIs(t, err, api.ErrUnknownHandle)
}
