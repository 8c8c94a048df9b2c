// control/admin.go
// Author: momentics <momentics@gmail.com>
//
// Admin HTTP surface: Prometheus scrape endpoint, liveness and debug state.

package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewAdminRouter mounts /metrics, /healthz and /debug/state. healthy may be
// nil, in which case /healthz always reports ok.
func NewAdminRouter(m *Metrics, probes *DebugProbes, healthy func() error) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if healthy != nil {
			if err := healthy(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error() + "\n"))
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/debug/state", probes)
	return r
}

// AdminServer runs the admin router on its own listener.
type AdminServer struct {
	srv    *http.Server
	logger *log.Logger
}

// NewAdminServer prepares a server for addr; Start begins serving.
func NewAdminServer(addr string, handler http.Handler, logger *log.Logger) *AdminServer {
	return &AdminServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background.
func (a *AdminServer) Start() {
	go func() {
		a.logger.Info("admin endpoint listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin endpoint failed", "err", err)
		}
	}()
}

// Shutdown stops the server, waiting up to the context deadline.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
