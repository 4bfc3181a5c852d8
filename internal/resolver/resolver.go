// Package resolver turns postal codes into coordinates, routes and fuel
// prices by arbitrating between unreliable upstream providers.
//
// Every operation runs the same pipeline (see resolveWithFallback): a fresh
// cache entry wins; otherwise providers are tried in priority order, each
// answer is checked against independent trust rules, the first answer that
// passes is cached, and when every provider fails a deterministic estimate
// is returned instead of an error. Only malformed caller input and exceeded
// rate limits are reported as errors.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/cache"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/observability"
	"github.com/couchcryptid/haulage-resolver-service/internal/ratelimit"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Radius limits for fuel-price searches.
const (
	MinFuelRadiusKm     = 1
	MaxFuelRadiusKm     = 25
	DefaultFuelRadiusKm = 10
)

// Config holds the business constants of the resolver.
type Config struct {
	DepotPostalCode   string
	Depot             domain.Coordinate
	Bounds            domain.BoundingBox
	FuelType          domain.FuelType
	FallbackFuelPrice float64
	BatchMaxCount     int
	BatchDelay        time.Duration
}

// Providers lists the adapters in priority order. Fuel may be nil.
type Providers struct {
	Geocoders []domain.Geocoder
	Routers   []domain.Router
	Fuel      domain.FuelPriceProvider
}

// Caches holds one result store per operation.
type Caches struct {
	Geocode *cache.Store[domain.GeocodeResult]
	Route   *cache.Store[domain.RouteResult]
	Fuel    *cache.Store[domain.FuelPrice]
}

// NewCaches creates the per-operation stores with the given TTLs.
func NewCaches(geocodeTTL, routeTTL, fuelTTL time.Duration, clock clockwork.Clock) Caches {
	return Caches{
		Geocode: cache.New[domain.GeocodeResult](geocodeTTL, clock),
		Route:   cache.New[domain.RouteResult](routeTTL, clock),
		Fuel:    cache.New[domain.FuelPrice](fuelTTL, clock),
	}
}

// EventPublisher receives every provider-resolved and fallback result.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ResolutionEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.ResolutionEvent) error { return nil }

// Deps are the collaborators of a Service. Caches and Limiter are process
// state: created at startup, never persisted, lost on restart.
type Deps struct {
	Providers Providers
	Caches    Caches
	Limiter   *ratelimit.Limiter // nil disables rate limiting
	Publisher EventPublisher     // nil discards events
	Clock     clockwork.Clock    // nil uses real time
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Service is the resolution orchestrator.
type Service struct {
	cfg       Config
	providers Providers
	caches    Caches
	limiter   *ratelimit.Limiter
	publisher EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	flights   singleflight.Group
}

// New creates a Service. Missing caches are created with the default TTLs.
func New(cfg Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	defaults := NewCaches(cache.NoExpiry, 15*time.Minute, time.Hour, deps.Clock)
	if deps.Caches.Geocode == nil {
		deps.Caches.Geocode = defaults.Geocode
	}
	if deps.Caches.Route == nil {
		deps.Caches.Route = defaults.Route
	}
	if deps.Caches.Fuel == nil {
		deps.Caches.Fuel = defaults.Fuel
	}
	if cfg.BatchMaxCount <= 0 {
		cfg.BatchMaxCount = 50
	}

	return &Service{
		cfg:       cfg,
		providers: deps.Providers,
		caches:    deps.Caches,
		limiter:   deps.Limiter,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
}

// Admit charges one request to identity's rate-limit window. An empty
// identity is treated as anonymous.
func (s *Service) Admit(identity string) error {
	if s.limiter == nil {
		return nil
	}
	if identity == "" {
		identity = ratelimit.Anonymous
	}
	if s.limiter.Allow(identity) {
		s.metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
		return nil
	}
	s.metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
	return &domain.RateLimitError{Identity: identity, RetryAfter: s.limiter.RetryAfter(identity)}
}

// CheckReadiness reports whether at least one geocoder is configured; no
// operation can reach a provider without one.
func (s *Service) CheckReadiness(_ context.Context) error {
	if len(s.providers.Geocoders) == 0 {
		return errors.New("no geocoding provider configured")
	}
	return nil
}

// ResolveCoordinates geocodes an address or postal code. A miss on every
// provider is reported as Success=false, not as an error.
func (s *Service) ResolveCoordinates(ctx context.Context, query string) (domain.GeocodeResult, error) {
	q, err := parseGeocodeQuery(query)
	if err != nil {
		return domain.GeocodeResult{}, err
	}

	if q.PostalCode != "" && q.PostalCode == s.cfg.DepotPostalCode {
		depot := s.cfg.Depot
		return domain.GeocodeResult{Success: true, Coordinates: &depot, Source: domain.SourceDepot}, nil
	}

	attempts := make([]attempt[domain.GeocodeResult], 0, len(s.providers.Geocoders))
	for _, g := range s.providers.Geocoders {
		attempts = append(attempts, attempt[domain.GeocodeResult]{
			provider: g.Name(),
			call: func(ctx context.Context) (domain.GeocodeResult, error) {
				c, err := g.Geocode(ctx, q)
				if err != nil {
					return domain.GeocodeResult{}, err
				}
				return domain.GeocodeResult{Success: true, Coordinates: &c, Source: g.Name()}, nil
			},
		})
	}

	out := resolveWithFallback(ctx, s, plan[domain.GeocodeResult]{
		operation: opGeocode,
		key:       geocodeKey(q.Text),
		cache:     s.caches.Geocode,
		attempts:  attempts,
		validate: func(r domain.GeocodeResult) error {
			return domain.ValidateCoordinate(*r.Coordinates, s.cfg.Bounds)
		},
	})
	if !out.ok {
		return domain.GeocodeResult{Success: false, Error: domain.ErrNotFound.Error()}, nil
	}
	// The cached result is shared; callers get their own coordinate.
	res := out.value
	if res.Coordinates != nil {
		c := *res.Coordinates
		res.Coordinates = &c
	}
	return res, nil
}

func parseGeocodeQuery(query string) (domain.GeocodeQuery, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return domain.GeocodeQuery{}, domain.NewInputError("address", "is required")
	}
	if domain.IsPostalCode(text) {
		return domain.GeocodeQuery{Text: text, PostalCode: text}, nil
	}
	if isDigits(text) {
		return domain.GeocodeQuery{}, domain.NewInputError("address", "must be a 5-digit postal code, got %q", text)
	}
	return domain.GeocodeQuery{Text: text}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveRoute estimates the road distance and travel time between two
// postal codes. It always returns a result for well-formed input.
func (s *Service) ResolveRoute(ctx context.Context, origin, destination string) (domain.RouteResult, error) {
	origin, err := domain.ValidatePostalCode("origin", origin)
	if err != nil {
		return domain.RouteResult{}, err
	}
	destination, err = domain.ValidatePostalCode("destination", destination)
	if err != nil {
		return domain.RouteResult{}, err
	}

	// Set by prepare, read by the attempts and validate of the same flight.
	var from, to domain.Coordinate
	prepare := func(ctx context.Context) error {
		var err error
		if from, err = s.coordinatesOf(ctx, origin); err != nil {
			return err
		}
		to, err = s.coordinatesOf(ctx, destination)
		return err
	}

	attempts := make([]attempt[domain.RouteResult], 0, len(s.providers.Routers))
	for _, r := range s.providers.Routers {
		attempts = append(attempts, attempt[domain.RouteResult]{
			provider: r.Name(),
			call: func(ctx context.Context) (domain.RouteResult, error) {
				leg, err := r.Route(ctx, from, to)
				if err != nil {
					return domain.RouteResult{}, err
				}
				return domain.NewRouteResult(leg.DistanceKm, leg.DurationMin, leg.DurationNoTrafficMin, r.Name()), nil
			},
		})
	}

	out := resolveWithFallback(ctx, s, plan[domain.RouteResult]{
		operation: opRoute,
		key:       routeKey(origin, destination),
		cache:     s.caches.Route,
		prepare:   prepare,
		attempts:  attempts,
		validate: func(r domain.RouteResult) error {
			return domain.ValidateRouteDistance(r.DistanceKm, domain.HaversineKm(from, to))
		},
		estimate: func() domain.RouteResult {
			return domain.EstimateRoute(origin, destination)
		},
	})
	return out.value, nil
}

// ResolveFuelPrice returns the fuel price around a postal code. Without
// market data it returns the configured fallback price tagged as such.
func (s *Service) ResolveFuelPrice(ctx context.Context, postalCode string, radiusKm int) (domain.FuelPrice, error) {
	postalCode, err := domain.ValidatePostalCode("postalCode", postalCode)
	if err != nil {
		return domain.FuelPrice{}, err
	}
	if radiusKm < MinFuelRadiusKm || radiusKm > MaxFuelRadiusKm {
		return domain.FuelPrice{}, domain.NewInputError("radius", "must be between %d and %d km, got %d",
			MinFuelRadiusKm, MaxFuelRadiusKm, radiusKm)
	}

	var at domain.Coordinate
	var attempts []attempt[domain.FuelPrice]
	if f := s.providers.Fuel; f != nil {
		attempts = append(attempts, attempt[domain.FuelPrice]{
			provider: f.Name(),
			call: func(ctx context.Context) (domain.FuelPrice, error) {
				prices, err := f.Prices(ctx, at, radiusKm, s.cfg.FuelType)
				if err != nil {
					return domain.FuelPrice{}, err
				}
				return domain.NewProviderFuelPrice(prices, s.clock.Now().UTC()), nil
			},
		})
	}

	out := resolveWithFallback(ctx, s, plan[domain.FuelPrice]{
		operation: opFuelPrice,
		key:       fuelKey(postalCode, radiusKm),
		cache:     s.caches.Fuel,
		prepare: func(ctx context.Context) error {
			if len(attempts) == 0 {
				return errors.New("no fuel price provider configured")
			}
			var err error
			at, err = s.coordinatesOf(ctx, postalCode)
			return err
		},
		attempts: attempts,
		estimate: func() domain.FuelPrice {
			return domain.FallbackFuelPrice(s.cfg.FallbackFuelPrice, s.clock.Now().UTC())
		},
	})
	return out.value, nil
}

// coordinatesOf geocodes a validated postal code for use as a provider input.
func (s *Service) coordinatesOf(ctx context.Context, postalCode string) (domain.Coordinate, error) {
	r, err := s.ResolveCoordinates(ctx, postalCode)
	if err != nil {
		return domain.Coordinate{}, err
	}
	if !r.Success || r.Coordinates == nil {
		return domain.Coordinate{}, errors.New("could not geocode " + postalCode)
	}
	return *r.Coordinates, nil
}

// BatchResolveCoordinates geocodes addresses one after another, pausing
// BatchDelay between lookups so upstream providers are not burst. Results
// are in input order; a bad entry yields a failed result, not an error.
func (s *Service) BatchResolveCoordinates(ctx context.Context, addresses []string) ([]domain.GeocodeResult, error) {
	if len(addresses) == 0 {
		return nil, domain.NewInputError("addresses", "is required")
	}
	if len(addresses) > s.cfg.BatchMaxCount {
		return nil, domain.NewInputError("addresses", "at most %d entries allowed, got %d",
			s.cfg.BatchMaxCount, len(addresses))
	}

	results := make([]domain.GeocodeResult, len(addresses))
	for i, addr := range addresses {
		if i > 0 && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clock.After(s.cfg.BatchDelay):
			}
		}

		r, err := s.ResolveCoordinates(ctx, addr)
		if err != nil {
			r = domain.GeocodeResult{Success: false, Error: err.Error()}
		}
		results[i] = r
	}
	return results, nil
}
