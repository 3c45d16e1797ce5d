package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/GoSyspower/internal/logging"
)

// WebServer exposes the run history, the templates and the metrics over HTTP.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// NewWebServer builds an HTTP server for hub. gatherer may be nil to omit /metrics.
func NewWebServer(addr string, hub *Hub, gatherer prometheus.Gatherer) *WebServer {
	return &WebServer{
		hub:    hub,
		logger: hub.logger,
		srv:    &http.Server{Addr: addr, Handler: NewHandler(hub, gatherer), ReadHeaderTimeout: 5 * time.Second},
	}
}

// NewHandler returns the routes served by WebServer.
func NewHandler(hub *Hub, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", hub.handleHistory)
	mux.HandleFunc("/api/outcomes", hub.handleOutcomes)
	mux.HandleFunc("/api/templates", hub.handleTemplates)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until the context is canceled.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web telemetry shutdown", logging.F("err", err))
		}
	}()

	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.logger.Error("web telemetry server error", logging.F("err", err))
	}
}
