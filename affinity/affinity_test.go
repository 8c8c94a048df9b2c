package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPin_RejectsOutOfRange(t *testing.T) {
	assert.Error(t, Pin(-1))
	assert.Error(t, Pin(runtime.NumCPU()))
}

func TestPin_CPUZero(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := Pin(0)
	if runtime.GOOS != "linux" {
		assert.ErrorIs(t, err, ErrUnsupported)
		return
	}
	require.NoError(t, err)
}
