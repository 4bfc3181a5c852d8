package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/haulage-resolver-service/internal/adapter/kafka"
	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/mapbox"
	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/nominatim"
	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/osrm"
	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/tankerkoenig"
	"github.com/couchcryptid/haulage-resolver-service/internal/config"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/observability"
	"github.com/couchcryptid/haulage-resolver-service/internal/ratelimit"
	"github.com/couchcryptid/haulage-resolver-service/internal/resolver"
	"github.com/jonboulle/clockwork"
)

const serviceName = "haulage-resolver"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	providers := buildProviders(cfg, clock, logger, metrics)

	deps := resolver.Deps{
		Providers: providers,
		Caches:    resolver.NewCaches(cfg.GeocodeCacheTTL, cfg.RouteCacheTTL, cfg.FuelCacheTTL, clock),
		Limiter:   ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMax, clock),
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	}

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		deps.Publisher = publisher
		logger.Info("resolution events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	svc := resolver.New(resolver.Config{
		DepotPostalCode: cfg.DepotPostalCode,
		Depot:           domain.Coordinate{Lat: cfg.DepotLat, Lon: cfg.DepotLon},
		Bounds: domain.BoundingBox{
			MinLat: cfg.BoundsMinLat,
			MaxLat: cfg.BoundsMaxLat,
			MinLon: cfg.BoundsMinLon,
			MaxLon: cfg.BoundsMaxLon,
		},
		FuelType:          domain.FuelType(cfg.FuelType),
		FallbackFuelPrice: cfg.FallbackFuelPrice,
		BatchMaxCount:     cfg.BatchMaxCount,
		BatchDelay:        cfg.BatchDelay,
	}, deps)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, metrics, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// buildProviders registers the adapters whose credentials are configured,
// in priority order.
func buildProviders(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) resolver.Providers {
	var p resolver.Providers

	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.ProviderTimeout, logger)
		p.Geocoders = append(p.Geocoders, client)
		p.Routers = append(p.Routers, client)
		logger.Info("mapbox enabled", "timeout", cfg.ProviderTimeout)
	} else {
		logger.Info("mapbox disabled")
	}
	metrics.ProvidersEnabled.WithLabelValues(mapbox.Name).Set(boolGauge(cfg.MapboxEnabled))

	p.Geocoders = append(p.Geocoders, nominatim.NewClient(
		nominatim.WithBaseURL(cfg.NominatimURL),
		nominatim.WithTimeout(cfg.ProviderTimeout),
		nominatim.WithUserAgent(cfg.NominatimUserAgent),
		nominatim.WithClock(clock),
	))
	metrics.ProvidersEnabled.WithLabelValues(nominatim.Name).Set(1)

	p.Routers = append(p.Routers, osrm.NewClient(cfg.OSRMURL, cfg.ProviderTimeout))
	metrics.ProvidersEnabled.WithLabelValues(osrm.Name).Set(1)

	if cfg.TankerkoenigAPIKey != "" {
		p.Fuel = tankerkoenig.NewClient(cfg.TankerkoenigAPIKey, "", cfg.ProviderTimeout)
		logger.Info("tankerkoenig enabled", "fuel_type", cfg.FuelType)
	} else {
		logger.Info("tankerkoenig disabled, using fallback fuel price", "price", cfg.FallbackFuelPrice)
	}
	metrics.ProvidersEnabled.WithLabelValues(tankerkoenig.Name).Set(boolGauge(p.Fuel != nil))

	return p
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
