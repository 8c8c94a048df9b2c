// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Reload hooks for configuration file changes. Only settings that are safe
// to apply live (log level, metrics toggles) are expected to be consumed by
// hooks; listeners are never rebound on reload.

package control

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Reloader dispatches validated configs to registered hooks.
type Reloader struct {
	mu    sync.Mutex
	hooks []func(*Config)
	errs  []func(error)
}

// NewReloader returns a Reloader with no hooks.
func NewReloader() *Reloader {
	return &Reloader{}
}

// RegisterReloadHook adds a listener for accepted configs.
func (r *Reloader) RegisterReloadHook(fn func(*Config)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// RegisterErrorHook adds a listener for rejected reloads.
func (r *Reloader) RegisterErrorHook(fn func(error)) {
	r.mu.Lock()
	r.errs = append(r.errs, fn)
	r.mu.Unlock()
}

// Trigger validates cfg and invokes hooks synchronously in registration
// order. An invalid cfg is reported to the error hooks instead.
func (r *Reloader) Trigger(cfg *Config) error {
	r.mu.Lock()
	hooks := slices.Clone(r.hooks)
	errs := slices.Clone(r.errs)
	r.mu.Unlock()

	if err := Validate(cfg); err != nil {
		for _, fn := range errs {
			fn(err)
		}
		return err
	}
	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// Watch re-reads path on every write and calls Trigger with the result.
// It returns after the first successful read; watching continues in the
// background for the life of the process.
func (r *Reloader) Watch(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("watch: empty config path")
	}
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	decode := func() (*Config, error) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		return cfg, nil
	}
	initial, err := decode()
	if err != nil {
		return nil, err
	}
	if err := Validate(initial); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode()
		if err != nil {
			r.mu.Lock()
			errs := slices.Clone(r.errs)
			r.mu.Unlock()
			for _, fn := range errs {
				fn(err)
			}
			return
		}
		_ = r.Trigger(cfg)
	})
	v.WatchConfig()
	return initial, nil
}
