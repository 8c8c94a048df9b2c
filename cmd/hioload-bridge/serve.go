// File: cmd/hioload-bridge/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/momentics/hioload-bridge/control"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/internal/echo"
	"github.com/momentics/hioload-bridge/internal/logger"
	"github.com/momentics/hioload-bridge/server"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	configPath string
	listen     []string
	pipes      []string
	watch      bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo application on the configured endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (yaml, toml or json)")
	cmd.Flags().StringSliceVar(&f.listen, "listen", nil, "extra TCP endpoint host:port (repeatable)")
	cmd.Flags().StringSliceVar(&f.pipes, "pipe", nil, "extra unix socket path (repeatable, mask 0077)")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "reload log level when the config file changes")
	return cmd
}

// endpoints merges configured servers with command-line ones.
func endpoints(cfg *control.Config, f serveFlags) ([]control.ServerConfig, error) {
	out := append([]control.ServerConfig(nil), cfg.Servers...)
	for _, l := range f.listen {
		host, port, err := net.SplitHostPort(l)
		if err != nil {
			return nil, fmt.Errorf("--listen %q: %w", l, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("--listen %q: bad port", l)
		}
		out = append(out, control.ServerConfig{Network: "tcp", Host: host, Port: p})
	}
	for _, p := range f.pipes {
		out = append(out, control.ServerConfig{Network: "unix", Path: p, Mask: 0o077})
	}
	if len(out) == 0 {
		out = append(out, control.ServerConfig{Network: "tcp", Host: "127.0.0.1", Port: 8080})
	}
	return out, nil
}

func runServe(ctx context.Context, f serveFlags) error {
	cfg, err := control.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	lg, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
		Prefix: "hioload-bridge",
	})
	if err != nil {
		return err
	}

	metrics := control.NewMetrics(nil)
	rt := server.New(append(cfg.RuntimeOptions(),
		server.WithLogger(lg),
		server.WithObserver(metrics),
	)...)
	defer rt.StopAllServers()

	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	probes.RegisterProbe("runtime", func() any { return rt.Snapshot() })

	if f.watch && f.configPath != "" {
		if err := watchConfig(f.configPath, lg); err != nil {
			return err
		}
	}

	eps, err := endpoints(cfg, f)
	if err != nil {
		return err
	}
	for _, ep := range eps {
		app := echo.New(rt, lg)
		h, err := rt.CreateServer(ctx, ep.BindSpec(), app)
		if err != nil {
			return fmt.Errorf("start %s: %w", ep.BindSpec(), err)
		}
		addr, _ := rt.ServerAddr(h)
		lg.Info("listening", "server", h, "addr", addr)
		probes.RegisterProbe("echo."+h.String()+".websockets", func() any { return app.Connections() })
	}

	if cfg.Metrics.Enabled {
		admin := control.NewAdminServer(cfg.Metrics.Address,
			control.NewAdminRouter(metrics, probes, func() error {
				if s := rt.LoopState(); s != concurrency.StateRunning {
					return fmt.Errorf("event loop %s", s)
				}
				return nil
			}), lg)
		admin.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = admin.Shutdown(sctx)
		}()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	lg.Info("shutting down")
	return nil
}

func watchConfig(path string, lg *log.Logger) error {
	r := control.NewReloader()
	r.RegisterReloadHook(func(c *control.Config) {
		lvl, err := log.ParseLevel(c.Logging.Level)
		if err != nil {
			return
		}
		lg.SetLevel(lvl)
		lg.Info("config reloaded", "level", c.Logging.Level)
	})
	r.RegisterErrorHook(func(err error) {
		lg.Warn("config reload rejected", "err", err)
	})
	_, err := r.Watch(path)
	return err
}
