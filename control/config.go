// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Configuration loading for hioload-bridge.
//
// Sources in order of precedence:
//  1. Environment variables (HIOLOAD_BRIDGE_*, nested keys joined by "_")
//  2. Configuration file (YAML, TOML or JSON, by extension)
//  3. Defaults

package control

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/protocol"
	"github.com/momentics/hioload-bridge/server"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "HIOLOAD_BRIDGE"

// Config is the complete bridge configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Servers    []ServerConfig   `mapstructure:"servers" validate:"dive"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json logfmt"`
}

// LoopConfig controls the event loop.
type LoopConfig struct {
	// LockOSThread pins the loop goroutine to a dedicated OS thread.
	LockOSThread bool `mapstructure:"lock_os_thread"`

	// CPU pins the loop thread to one logical CPU; -1 leaves it unpinned.
	CPU int `mapstructure:"cpu" validate:"gte=-1"`

	// CreateTimeout bounds how long CreateServer waits for the loop's reply.
	CreateTimeout time.Duration `mapstructure:"create_timeout" validate:"gt=0"`
}

// ConnectionConfig holds per-connection limits.
type ConnectionConfig struct {
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ReadLimit      int64         `mapstructure:"read_limit" validate:"gte=0"`
	BodyChunkSize  int           `mapstructure:"body_chunk_size" validate:"gt=0"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" validate:"gt=0"`
}

// MetricsConfig controls the admin endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// ServerConfig is one listening endpoint started by the CLI.
type ServerConfig struct {
	Network string `mapstructure:"network" validate:"required,oneof=tcp unix"`
	Host    string `mapstructure:"host" validate:"required_if=Network tcp"`
	Port    int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Path    string `mapstructure:"path" validate:"required_if=Network unix"`
	Mask    uint32 `mapstructure:"mask" validate:"lte=511"`
}

// BindSpec converts the entry to an api.BindSpec.
func (s ServerConfig) BindSpec() api.BindSpec {
	if s.Network == string(api.NetworkPipe) {
		return api.Pipe(s.Path, s.Mask)
	}
	return api.TCP(s.Host, s.Port)
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Loop: LoopConfig{
			LockOSThread:  true,
			CPU:           -1,
			CreateTimeout: 10 * time.Second,
		},
		Connection: ConnectionConfig{
			WriteTimeout:   10 * time.Second,
			ReadLimit:      16 << 20,
			BodyChunkSize:  32 << 10,
			MaxHeaderBytes: 1 << 20,
		},
		Metrics: MetricsConfig{Enabled: false, Address: "127.0.0.1:9090"},
	}
}

// RuntimeOptions maps the loop and connection sections to server options.
func (c *Config) RuntimeOptions() []server.Option {
	return []server.Option{
		server.WithLockOSThread(c.Loop.LockOSThread),
		server.WithLoopCPU(c.Loop.CPU),
		server.WithCreateTimeout(c.Loop.CreateTimeout),
		server.WithConnConfig(protocol.Config{
			WriteTimeout:   c.Connection.WriteTimeout,
			ReadLimit:      c.Connection.ReadLimit,
			BodyChunkSize:  c.Connection.BodyChunkSize,
			MaxHeaderBytes: c.Connection.MaxHeaderBytes,
		}),
	}
}

// LoadConfig reads configuration from path (optional), the environment and
// defaults, then validates it.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("loop.lock_os_thread", d.Loop.LockOSThread)
	v.SetDefault("loop.cpu", d.Loop.CPU)
	v.SetDefault("loop.create_timeout", d.Loop.CreateTimeout)
	v.SetDefault("connection.write_timeout", d.Connection.WriteTimeout)
	v.SetDefault("connection.read_limit", d.Connection.ReadLimit)
	v.SetDefault("connection.body_chunk_size", d.Connection.BodyChunkSize)
	v.SetDefault("connection.max_header_bytes", d.Connection.MaxHeaderBytes)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
}

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	seen := make(map[string]int, len(cfg.Servers))
	for i, s := range cfg.Servers {
		spec := s.BindSpec()
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		key := spec.String()
		if j, dup := seen[key]; dup && !(s.Network == "tcp" && s.Port == 0) {
			return fmt.Errorf("servers[%d]: duplicate of servers[%d] (%s)", i, j, key)
		}
		seen[key] = i
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
