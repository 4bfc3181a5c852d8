package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream providers. Every adapter shares the same bounded timeout.
	ProviderTimeout    time.Duration
	MapboxToken        string
	MapboxEnabled      bool
	NominatimURL       string
	NominatimUserAgent string
	OSRMURL            string
	TankerkoenigAPIKey string
	FuelType           string
	FallbackFuelPrice  float64

	// Result cache TTLs. Zero never expires.
	GeocodeCacheTTL time.Duration
	RouteCacheTTL   time.Duration
	FuelCacheTTL    time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int

	// Depot shortcut and trust region.
	DepotPostalCode string
	DepotLat        float64
	DepotLon        float64
	BoundsMinLat    float64
	BoundsMaxLat    float64
	BoundsMinLon    float64
	BoundsMaxLon    float64

	// Batch geocoding limits.
	BatchMaxCount int
	BatchDelay    time.Duration

	// Resolution event stream.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ProviderTimeout:    p.duration("PROVIDER_TIMEOUT", "5s", false),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "haulage-resolver/1.0"),
		OSRMURL:            sharedcfg.EnvOrDefault("OSRM_URL", "https://router.project-osrm.org"),
		TankerkoenigAPIKey: os.Getenv("TANKERKOENIG_API_KEY"),
		FuelType:           sharedcfg.EnvOrDefault("FUEL_TYPE", "diesel"),
		FallbackFuelPrice:  p.float("FUEL_FALLBACK_PRICE", 1.65),

		GeocodeCacheTTL: p.duration("GEOCODE_CACHE_TTL", "0s", true),
		RouteCacheTTL:   p.duration("ROUTE_CACHE_TTL", "15m", true),
		FuelCacheTTL:    p.duration("FUEL_CACHE_TTL", "1h", true),

		RateLimitWindow: p.duration("RATE_LIMIT_WINDOW", "1m", false),
		RateLimitMax:    p.positiveInt("RATE_LIMIT_MAX", 60),

		DepotPostalCode: sharedcfg.EnvOrDefault("DEPOT_POSTAL_CODE", "97828"),
		DepotLat:        p.float("DEPOT_LAT", 49.8440),
		DepotLon:        p.float("DEPOT_LON", 9.6010),
		BoundsMinLat:    p.float("BOUNDS_MIN_LAT", 47),
		BoundsMaxLat:    p.float("BOUNDS_MAX_LAT", 56),
		BoundsMinLon:    p.float("BOUNDS_MIN_LON", 5),
		BoundsMaxLon:    p.float("BOUNDS_MAX_LON", 16),

		BatchMaxCount: batchSize,
		BatchDelay:    p.duration("BATCH_DELAY", "100ms", true),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "resolution-events"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if p.err != nil {
		return nil, p.err
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if _, ok := domain.ParseFuelType(c.FuelType); !ok {
		return fmt.Errorf("invalid FUEL_TYPE %q: want e5, e10 or diesel", c.FuelType)
	}
	if c.FallbackFuelPrice <= 0 {
		return errors.New("FUEL_FALLBACK_PRICE must be positive")
	}
	if !domain.IsPostalCode(c.DepotPostalCode) {
		return fmt.Errorf("invalid DEPOT_POSTAL_CODE %q", c.DepotPostalCode)
	}
	if c.BoundsMinLat >= c.BoundsMaxLat || c.BoundsMinLon >= c.BoundsMaxLon {
		return errors.New("BOUNDS_MIN_* must be below BOUNDS_MAX_*")
	}
	if c.DepotLat < c.BoundsMinLat || c.DepotLat > c.BoundsMaxLat ||
		c.DepotLon < c.BoundsMinLon || c.DepotLon > c.BoundsMaxLon {
		return errors.New("DEPOT_LAT/DEPOT_LON must lie inside the BOUNDS_* box")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.KafkaEnabled && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}
	return nil
}

// parser collects the first parse error so Load can build Config in one literal.
type parser struct {
	err error
}

func (p *parser) duration(name, def string, allowZero bool) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		p.fail(fmt.Errorf("invalid %s", name))
		return 0
	}
	return d
}

func (p *parser) float(name string, def float64) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: %w", name, err))
		return 0
	}
	return f
}

func (p *parser) positiveInt(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		p.fail(fmt.Errorf("invalid %s: must be a positive integer", name))
		return 0
	}
	return n
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
