package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/observability"
	"github.com/couchcryptid/haulage-resolver-service/internal/ratelimit"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	depot  = domain.Coordinate{Lat: 49.8440, Lon: 9.6010}
	berlin = domain.Coordinate{Lat: 52.5310, Lon: 13.3849}
	munich = domain.Coordinate{Lat: 48.1351, Lon: 11.5820}
	paris  = domain.Coordinate{Lat: 48.8566, Lon: 2.3522}
)

// --- fakes ---

type fakeGeocoder struct {
	name string
	fn   func(q domain.GeocodeQuery) (domain.Coordinate, error)

	mu    sync.Mutex
	calls []string
}

func (g *fakeGeocoder) Name() string { return g.name }

func (g *fakeGeocoder) Geocode(_ context.Context, q domain.GeocodeQuery) (domain.Coordinate, error) {
	g.mu.Lock()
	g.calls = append(g.calls, q.Text)
	g.mu.Unlock()
	return g.fn(q)
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// atlas answers from a fixed postal-code table.
func atlas(name string) *fakeGeocoder {
	table := map[string]domain.Coordinate{
		"10115": berlin,
		"80331": munich,
		"11111": berlin,
	}
	return &fakeGeocoder{name: name, fn: func(q domain.GeocodeQuery) (domain.Coordinate, error) {
		if c, ok := table[q.Text]; ok {
			return c, nil
		}
		return domain.Coordinate{}, domain.NewProviderError(name, domain.ReasonNoResults, nil)
	}}
}

func failingGeocoder(name string) *fakeGeocoder {
	return &fakeGeocoder{name: name, fn: func(domain.GeocodeQuery) (domain.Coordinate, error) {
		return domain.Coordinate{}, domain.NewProviderError(name, domain.ReasonStatus, errors.New("HTTP 503"))
	}}
}

type fakeRouter struct {
	name string
	leg  domain.RouteLeg
	err  error

	mu    sync.Mutex
	calls int
}

func (r *fakeRouter) Name() string { return r.name }

func (r *fakeRouter) Route(context.Context, domain.Coordinate, domain.Coordinate) (domain.RouteLeg, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.leg, r.err
}

func (r *fakeRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeFuel struct {
	prices domain.StationPrices
	err    error

	mu    sync.Mutex
	calls int
	at    domain.Coordinate
}

func (f *fakeFuel) Name() string { return "tankerkoenig" }

func (f *fakeFuel) Prices(_ context.Context, at domain.Coordinate, _ int, _ domain.FuelType) (domain.StationPrices, error) {
	f.mu.Lock()
	f.calls++
	f.at = at
	f.mu.Unlock()
	return f.prices, f.err
}

func (f *fakeFuel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ResolutionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.ResolutionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Source)
	}
	return out
}

func testConfig() Config {
	return Config{
		DepotPostalCode:   "97828",
		Depot:             depot,
		Bounds:            domain.GermanyBounds,
		FuelType:          domain.FuelDiesel,
		FallbackFuelPrice: 1.65,
		BatchMaxCount:     50,
	}
}

func newTestService(t *testing.T, cfg Config, deps Deps) *Service {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewFakeClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	if deps.Caches.Geocode == nil {
		deps.Caches = NewCaches(0, 15*time.Minute, time.Hour, deps.Clock)
	}
	return New(cfg, deps)
}

// --- geocoding ---

func TestResolveCoordinates_PrimaryProvider(t *testing.T) {
	primary, secondary := atlas("mapbox"), atlas("nominatim")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{primary, secondary}},
	})

	r, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, &berlin, r.Coordinates)
	assert.Equal(t, "mapbox", r.Source)
	assert.Equal(t, 0, secondary.callCount())
}

func TestResolveCoordinates_CacheHit(t *testing.T) {
	primary := atlas("mapbox")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{primary}},
	})

	first, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)
	second, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)

	assert.Equal(t, first.Coordinates, second.Coordinates)
	assert.Equal(t, 1, primary.callCount())
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.CacheLookups.WithLabelValues(opGeocode, "hit")), 0)
}

func TestResolveCoordinates_CallerCannotMutateCache(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}},
	})

	first, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)
	first.Coordinates.Lat = 0

	second, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)
	assert.Equal(t, &berlin, second.Coordinates)
	assert.NotSame(t, first.Coordinates, second.Coordinates)
}

func TestResolveCoordinates_NormalizedFreeText(t *testing.T) {
	g := &fakeGeocoder{name: "mapbox", fn: func(domain.GeocodeQuery) (domain.Coordinate, error) { return munich, nil }}
	svc := newTestService(t, testConfig(), Deps{Providers: Providers{Geocoders: []domain.Geocoder{g}}})

	_, err := svc.ResolveCoordinates(context.Background(), "Marienplatz 1,  München")
	require.NoError(t, err)
	r, err := svc.ResolveCoordinates(context.Background(), "  marienplatz 1, münchen")
	require.NoError(t, err)

	assert.True(t, r.Success)
	assert.Equal(t, 1, g.callCount())
}

func TestResolveCoordinates_FallsBackToSecondary(t *testing.T) {
	primary, secondary := failingGeocoder("mapbox"), atlas("nominatim")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{primary, secondary}},
	})

	r, err := svc.ResolveCoordinates(context.Background(), "80331")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "nominatim", r.Source)
	assert.Equal(t, &munich, r.Coordinates)
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.ProviderRequests.WithLabelValues(opGeocode, "mapbox", "status")), 0)
}

func TestResolveCoordinates_RejectsOutOfBounds(t *testing.T) {
	wrongCountry := &fakeGeocoder{name: "mapbox", fn: func(domain.GeocodeQuery) (domain.Coordinate, error) { return paris, nil }}
	secondary := atlas("nominatim")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{wrongCountry, secondary}},
	})

	r, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)
	assert.Equal(t, "nominatim", r.Source)
	assert.Equal(t, &berlin, r.Coordinates)
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.ProviderRequests.WithLabelValues(opGeocode, "mapbox", "invalid")), 0)
}

func TestResolveCoordinates_RecoversFromPanickingProvider(t *testing.T) {
	broken := &fakeGeocoder{name: "mapbox", fn: func(domain.GeocodeQuery) (domain.Coordinate, error) { panic("nil map") }}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{broken, atlas("nominatim")}},
	})

	r, err := svc.ResolveCoordinates(context.Background(), "10115")
	require.NoError(t, err)
	assert.Equal(t, "nominatim", r.Source)
}

func TestResolveCoordinates_NotFound(t *testing.T) {
	primary, secondary := failingGeocoder("mapbox"), failingGeocoder("nominatim")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{primary, secondary}},
	})

	r, err := svc.ResolveCoordinates(context.Background(), "99999")
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Nil(t, r.Coordinates)
	assert.Equal(t, "not found", r.Error)

	// Failures are not cached; the next call asks again.
	_, err = svc.ResolveCoordinates(context.Background(), "99999")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 2, secondary.callCount())
}

func TestResolveCoordinates_DepotShortcut(t *testing.T) {
	primary := atlas("mapbox")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{primary}},
	})

	r, err := svc.ResolveCoordinates(context.Background(), " 97828 ")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, domain.SourceDepot, r.Source)
	assert.Equal(t, &depot, r.Coordinates)
	assert.Equal(t, 0, primary.callCount())
	assert.Equal(t, 0, svc.caches.Geocode.Len())
}

func TestResolveCoordinates_InputErrors(t *testing.T) {
	primary := atlas("mapbox")
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{primary}},
	})

	for _, bad := range []string{"", "   ", "1234", "123456"} {
		_, err := svc.ResolveCoordinates(context.Background(), bad)
		var inputErr *domain.InputError
		assert.ErrorAs(t, err, &inputErr, "query %q", bad)
	}
	assert.Equal(t, 0, primary.callCount())
}

func TestResolveCoordinates_CoalescesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	g := &fakeGeocoder{name: "mapbox", fn: func(domain.GeocodeQuery) (domain.Coordinate, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return berlin, nil
	}}
	svc := newTestService(t, testConfig(), Deps{Providers: Providers{Geocoders: []domain.Geocoder{g}}})

	const callers = 8
	results := make([]domain.GeocodeResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.ResolveCoordinates(context.Background(), "10115")
			assert.NoError(t, err)
			results[i] = r
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, g.callCount())
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, &berlin, r.Coordinates)
	}
}

// --- routes ---

func TestResolveRoute_RejectsImplausibleDistance(t *testing.T) {
	primary := &fakeRouter{name: "mapbox", leg: domain.RouteLeg{DistanceKm: 2000, DurationMin: 1200, DurationNoTrafficMin: 1100}}
	secondary := &fakeRouter{name: "osrm", leg: domain.RouteLeg{DistanceKm: 470, DurationMin: 290, DurationNoTrafficMin: 290}}
	pub := &recordingPublisher{}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{primary, secondary},
		},
		Publisher: pub,
	})

	r, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)
	assert.Equal(t, "osrm", r.Source)
	assert.Equal(t, 470.0, r.DistanceKm)
	assert.Zero(t, r.TrafficDelayMinutes)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, []string{"mapbox", "osrm"}, pub.sources(), "geocode of 10115 then the route")
}

func TestResolveRoute_AllImplausibleFallsBack(t *testing.T) {
	primary := &fakeRouter{name: "mapbox", leg: domain.RouteLeg{DistanceKm: 2000, DurationMin: 1200, DurationNoTrafficMin: 1100}}
	secondary := &fakeRouter{name: "osrm", leg: domain.RouteLeg{DistanceKm: 1500, DurationMin: 900, DurationNoTrafficMin: 900}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{primary, secondary},
		},
	})

	r, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, r.Source)
	assert.Equal(t, domain.EstimateRoute("97828", "10115"), r)
	assert.Equal(t, 0, svc.caches.Route.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.ProviderRequests.WithLabelValues(opRoute, "mapbox", "invalid")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.ProviderRequests.WithLabelValues(opRoute, "osrm", "invalid")), 0)
}

func TestResolveRoute_SamePostalCodeIsCached(t *testing.T) {
	primary := &fakeRouter{name: "mapbox", leg: domain.RouteLeg{}}
	secondary := &fakeRouter{name: "osrm", leg: domain.RouteLeg{}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{primary, secondary},
		},
	})

	for range 3 {
		r, err := svc.ResolveRoute(context.Background(), "10115", "10115")
		require.NoError(t, err)
		assert.Equal(t, "mapbox", r.Source)
		assert.Zero(t, r.DistanceKm)
	}
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, secondary.callCount())
	assert.Equal(t, 1, svc.caches.Route.Len())
}

func TestResolveRoute_TrafficDelay(t *testing.T) {
	primary := &fakeRouter{name: "mapbox", leg: domain.RouteLeg{DistanceKm: 470, DurationMin: 310, DurationNoTrafficMin: 280}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{primary},
		},
	})

	r, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)
	assert.Equal(t, 30.0, r.TrafficDelayMinutes)
}

func TestResolveRoute_CacheHit(t *testing.T) {
	router := &fakeRouter{name: "osrm", leg: domain.RouteLeg{DistanceKm: 470, DurationMin: 290, DurationNoTrafficMin: 290}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{router},
		},
	})

	for range 3 {
		_, err := svc.ResolveRoute(context.Background(), "97828", "10115")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, router.callCount())
}

func TestResolveRoute_StaleEntryRefreshed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	router := &fakeRouter{name: "osrm", leg: domain.RouteLeg{DistanceKm: 470, DurationMin: 290, DurationNoTrafficMin: 290}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{router},
		},
		Clock: clock,
	})

	_, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)
	clock.Advance(16 * time.Minute)
	_, err = svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)

	assert.Equal(t, 2, router.callCount())
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.CacheLookups.WithLabelValues(opRoute, "stale")), 0)
}

func TestResolveRoute_FallbackIsDeterministicAndNotCached(t *testing.T) {
	primary := &fakeRouter{name: "mapbox", err: domain.NewProviderError("mapbox", domain.ReasonTransport, context.DeadlineExceeded)}
	secondary := &fakeRouter{name: "osrm", err: domain.NewProviderError("osrm", domain.ReasonNoResults, nil)}
	pub := &recordingPublisher{}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{atlas("mapbox")},
			Routers:   []domain.Router{primary, secondary},
		},
		Publisher: pub,
	})

	first, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)
	second, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)

	assert.Equal(t, domain.EstimateRoute("97828", "10115"), first)
	assert.Equal(t, first, second)
	assert.Equal(t, domain.SourceFallback, first.Source)
	assert.Equal(t, 2, primary.callCount(), "fallbacks are not cached")
	assert.Contains(t, pub.sources(), domain.SourceFallback)
	assert.InDelta(t, 2, testutil.ToFloat64(svc.metrics.Fallbacks.WithLabelValues(opRoute)), 0)
}

func TestResolveRoute_UngeocodableEndpointUsesEstimate(t *testing.T) {
	router := &fakeRouter{name: "osrm", leg: domain.RouteLeg{DistanceKm: 470, DurationMin: 290, DurationNoTrafficMin: 290}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{
			Geocoders: []domain.Geocoder{failingGeocoder("mapbox")},
			Routers:   []domain.Router{router},
		},
	})

	r, err := svc.ResolveRoute(context.Background(), "97828", "10115")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, r.Source)
	assert.Equal(t, 0, router.callCount())
}

func TestResolveRoute_InputErrors(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{})

	_, err := svc.ResolveRoute(context.Background(), "9782", "10115")
	var inputErr *domain.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "origin", inputErr.Field)

	_, err = svc.ResolveRoute(context.Background(), "97828", "abcde")
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "destination", inputErr.Field)
}

// --- fuel prices ---

func TestResolveFuelPrice_CachedPerPostalCodeAndRadius(t *testing.T) {
	fuel := &fakeFuel{prices: domain.StationPrices{Cheapest: 1.599, Average: 1.629, StationCount: 2}}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}, Fuel: fuel},
	})

	first, err := svc.ResolveFuelPrice(context.Background(), "97828", 10)
	require.NoError(t, err)
	second, err := svc.ResolveFuelPrice(context.Background(), "97828", 10)
	require.NoError(t, err)

	assert.Equal(t, 1, fuel.callCount())
	assert.Equal(t, depot, fuel.at)
	assert.Equal(t, first, second)
	assert.True(t, first.Success)
	assert.Equal(t, 1.629, first.Price)
	require.NotNil(t, first.CheapestPrice)
	assert.Equal(t, 1.599, *first.CheapestPrice)
	require.NotNil(t, first.StationCount)
	assert.Equal(t, 2, *first.StationCount)

	_, err = svc.ResolveFuelPrice(context.Background(), "97828", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, fuel.callCount(), "radius is part of the key")
}

func TestResolveFuelPrice_Fallback(t *testing.T) {
	fuel := &fakeFuel{err: domain.NewProviderError("tankerkoenig", domain.ReasonNoResults, errors.New("no open stations"))}
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}, Fuel: fuel},
	})

	p, err := svc.ResolveFuelPrice(context.Background(), "10115", 10)
	require.NoError(t, err)
	assert.True(t, p.Success)
	assert.Equal(t, 1.65, p.Price)
	assert.Equal(t, domain.SourceFallback, p.Source)
	assert.Nil(t, p.CheapestPrice)
	assert.Equal(t, 0, svc.caches.Fuel.Len())
}

func TestResolveFuelPrice_WithoutProvider(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}},
	})

	p, err := svc.ResolveFuelPrice(context.Background(), "10115", 10)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, p.Source)
	assert.Equal(t, 1.65, p.Price)
}

func TestResolveFuelPrice_InputErrors(t *testing.T) {
	fuel := &fakeFuel{}
	svc := newTestService(t, testConfig(), Deps{Providers: Providers{Fuel: fuel}})

	tests := []struct {
		name   string
		plz    string
		radius int
		field  string
	}{
		{name: "short postal code", plz: "123", radius: 10, field: "postalCode"},
		{name: "zero radius", plz: "97828", radius: 0, field: "radius"},
		{name: "radius too large", plz: "97828", radius: 26, field: "radius"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveFuelPrice(context.Background(), tt.plz, tt.radius)
			var inputErr *domain.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}
	assert.Equal(t, 0, fuel.callCount())
}

// --- batch ---

func TestBatchResolveCoordinates_PreservesOrder(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{
		Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}},
	})

	results, err := svc.BatchResolveCoordinates(context.Background(), []string{"11111", "22222", "97828", "12"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].Success)
	assert.Equal(t, &berlin, results[0].Coordinates)
	assert.False(t, results[1].Success)
	assert.Equal(t, "not found", results[1].Error)
	assert.Equal(t, domain.SourceDepot, results[2].Source)
	assert.False(t, results[3].Success)
	assert.Contains(t, results[3].Error, "postal code")
}

func TestBatchResolveCoordinates_Limits(t *testing.T) {
	cfg := testConfig()
	cfg.BatchMaxCount = 2
	svc := newTestService(t, cfg, Deps{Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}}})

	var inputErr *domain.InputError
	_, err := svc.BatchResolveCoordinates(context.Background(), nil)
	require.ErrorAs(t, err, &inputErr)

	_, err = svc.BatchResolveCoordinates(context.Background(), []string{"10115", "80331", "11111"})
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "addresses", inputErr.Field)
}

func TestBatchResolveCoordinates_WaitsBetweenItems(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.BatchDelay = 100 * time.Millisecond
	g := atlas("mapbox")
	svc := newTestService(t, cfg, Deps{Providers: Providers{Geocoders: []domain.Geocoder{g}}, Clock: clock})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan []domain.GeocodeResult, 1)
	go func() {
		results, err := svc.BatchResolveCoordinates(ctx, []string{"10115", "80331"})
		assert.NoError(t, err)
		done <- results
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, g.callCount(), "second lookup waits for the delay")

	clock.Advance(100 * time.Millisecond)
	results := <-done
	require.Len(t, results, 2)
	assert.Equal(t, &munich, results[1].Coordinates)
	assert.Equal(t, 2, g.callCount())
}

func TestBatchResolveCoordinates_Cancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.BatchDelay = time.Second
	svc := newTestService(t, cfg, Deps{Providers: Providers{Geocoders: []domain.Geocoder{atlas("mapbox")}}, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.BatchResolveCoordinates(ctx, []string{"10115", "80331"})
		errCh <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

// --- admission ---

func TestAdmit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := newTestService(t, testConfig(), Deps{
		Limiter: ratelimit.New(time.Minute, 2, clock),
		Clock:   clock,
	})

	require.NoError(t, svc.Admit("token-a"))
	require.NoError(t, svc.Admit("token-a"))

	err := svc.Admit("token-a")
	var rlErr *domain.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "token-a", rlErr.Identity)
	assert.Equal(t, time.Minute, rlErr.RetryAfter)

	require.NoError(t, svc.Admit(""), "anonymous has its own window")
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.RateLimitDecisions.WithLabelValues("denied")), 0)

	clock.Advance(time.Minute + time.Second)
	assert.NoError(t, svc.Admit("token-a"))
}

func TestAdmit_NoLimiter(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{})
	for range 100 {
		require.NoError(t, svc.Admit("anyone"))
	}
}

func TestCheckReadiness(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{})
	assert.Error(t, svc.CheckReadiness(context.Background()))

	svc = newTestService(t, testConfig(), Deps{Providers: Providers{Geocoders: []domain.Geocoder{atlas("nominatim")}}})
	assert.NoError(t, svc.CheckReadiness(context.Background()))
}
