package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloader_TriggerOrder(t *testing.T) {
	r := NewReloader()
	var order []string
	r.RegisterReloadHook(func(c *Config) { order = append(order, "first:"+c.Logging.Level) })
	r.RegisterReloadHook(func(c *Config) { order = append(order, "second") })

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	require.NoError(t, r.Trigger(cfg))
	assert.Equal(t, []string{"first:debug", "second"}, order)
}

func TestReloader_InvalidConfigGoesToErrorHooks(t *testing.T) {
	r := NewReloader()
	var applied bool
	var reported error
	r.RegisterReloadHook(func(*Config) { applied = true })
	r.RegisterErrorHook(func(err error) { reported = err })

	cfg := DefaultConfig()
	cfg.Logging.Format = "xml"
	err := r.Trigger(cfg)
	require.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, err, reported)
}

func TestReloader_WatchReadsInitial(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")
	cfg, err := NewReloader().Watch(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)

	_, err = NewReloader().Watch("")
	assert.Error(t, err)
}

func TestReloader_HooksRegisteredDuringTriggerRunNextTime(t *testing.T) {
	r := NewReloader()
	var late int
	r.RegisterReloadHook(func(*Config) {
		// hooks may register more hooks without deadlocking
		r.RegisterReloadHook(func(*Config) { late++ })
	})

	require.NoError(t, r.Trigger(DefaultConfig()))
	assert.Equal(t, 0, late, "a hook added mid-trigger must not run in the same pass")

	require.NoError(t, r.Trigger(DefaultConfig()))
	assert.Equal(t, 1, late)
}

func TestReloader_ErrorHooksSnapshot(t *testing.T) {
	r := NewReloader()
	var seen int
	r.RegisterErrorHook(func(error) {
		seen++
		r.RegisterErrorHook(func(error) { seen += 10 })
	})

	bad := DefaultConfig()
	bad.Logging.Level = "loud"
	assert.Error(t, r.Trigger(bad))
	assert.Equal(t, 1, seen)
}
