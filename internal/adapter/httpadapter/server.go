// Package httpadapter exposes the resolver over HTTP alongside the health,
// readiness and metrics endpoints.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolver is the orchestrator surface the handlers depend on.
type Resolver interface {
	sharedobs.ReadinessChecker
	Admit(identity string) error
	ResolveCoordinates(ctx context.Context, query string) (domain.GeocodeResult, error)
	BatchResolveCoordinates(ctx context.Context, addresses []string) ([]domain.GeocodeResult, error)
	ResolveRoute(ctx context.Context, origin, destination string) (domain.RouteResult, error)
	ResolveFuelPrice(ctx context.Context, postalCode string, radiusKm int) (domain.FuelPrice, error)
}

// Server exposes the resolution API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /v1 API, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, svc Resolver, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     withMetrics(mux, metrics),
			ReadTimeout: 10 * time.Second,
			// Batch geocoding is throttled and can take a while.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	h := &handler{svc: svc, logger: logger}
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/geocode", h.geocode)
	api.HandleFunc("POST /v1/geocode/batch", h.batchGeocode)
	api.HandleFunc("GET /v1/route", h.route)
	api.HandleFunc("GET /v1/fuel-price", h.fuelPrice)

	mux.Handle("/v1/", withRateLimit(api, svc))
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
