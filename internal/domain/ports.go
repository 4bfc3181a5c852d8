package domain

import (
	"context"
	"time"
)

// GeocodeResult is the outcome of resolving an address or postal code.
type GeocodeResult struct {
	Success     bool        `json:"success"`
	Coordinates *Coordinate `json:"coordinates,omitempty"`
	Source      string      `json:"source,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// GeocodeQuery is what a geocoding adapter is asked to resolve. PostalCode is
// set when the caller passed a bare postal code; Text always holds the query.
type GeocodeQuery struct {
	Text       string
	PostalCode string
}

// Geocoder resolves a query to a coordinate. Implementations make exactly
// one upstream call and never retry.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, q GeocodeQuery) (Coordinate, error)
}

// RouteLeg is a provider's raw answer for a driving route.
type RouteLeg struct {
	DistanceKm           float64
	DurationMin          float64
	DurationNoTrafficMin float64
}

// Router computes a driving route between two coordinates.
type Router interface {
	Name() string
	Route(ctx context.Context, from, to Coordinate) (RouteLeg, error)
}

// FuelPriceProvider aggregates station prices within radiusKm of at.
type FuelPriceProvider interface {
	Name() string
	Prices(ctx context.Context, at Coordinate, radiusKm int, fuel FuelType) (StationPrices, error)
}

// ResolutionEvent records a trust decision for downstream consumers.
type ResolutionEvent struct {
	Operation  string    `json:"operation"`
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	Payload    any       `json:"payload"`
	ResolvedAt time.Time `json:"resolved_at"`
}
