package domain

import (
	"errors"
	"fmt"
	"math"
)

// Sources that are not adapter names.
const (
	SourceDepot    = "depot"
	SourceFallback = "fallback"
	SourceProvider = "provider"
)

// Trust limits for provider road distances.
const (
	MaxRouteKm           = 1000.0
	MaxDetourRatio       = 2.5
	minRatioCheckCrowKm  = 1.0
	fallbackKmPerZone    = 20.0
	fallbackMinKm        = 10.0
	fallbackAvgSpeedKmph = 60.0
)

// RouteResult is a road distance and duration estimate between two postal codes.
type RouteResult struct {
	DistanceKm                 float64 `json:"distanceKm"`
	TravelTimeMinutes          float64 `json:"travelTimeMinutes"`
	TravelTimeNoTrafficMinutes float64 `json:"travelTimeNoTrafficMinutes"`
	TrafficDelayMinutes        float64 `json:"trafficDelayMinutes"`
	Source                     string  `json:"source"`
}

// NewRouteResult builds a RouteResult, deriving the traffic delay so it is
// never negative.
func NewRouteResult(distanceKm, travelMin, noTrafficMin float64, source string) RouteResult {
	return RouteResult{
		DistanceKm:                 distanceKm,
		TravelTimeMinutes:          travelMin,
		TravelTimeNoTrafficMinutes: noTrafficMin,
		TrafficDelayMinutes:        math.Max(0, travelMin-noTrafficMin),
		Source:                     source,
	}
}

// ValidateRouteDistance rejects road distances that cannot be right for
// endpoints crowKm apart. Zero is valid: both endpoints share a centroid.
func ValidateRouteDistance(distanceKm, crowKm float64) error {
	switch {
	case distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0):
		return fmt.Errorf("invalid road distance %.1f km", distanceKm)
	case distanceKm > MaxRouteKm:
		return fmt.Errorf("road distance %.1f km exceeds %.0f km", distanceKm, MaxRouteKm)
	case crowKm >= minRatioCheckCrowKm && distanceKm > MaxDetourRatio*crowKm:
		return fmt.Errorf("road distance %.1f km is more than %.1fx the %.1f km great-circle distance",
			distanceKm, MaxDetourRatio, crowKm)
	}
	return nil
}

// ValidateCoordinate rejects coordinates outside the trust region.
func ValidateCoordinate(c Coordinate, bounds BoundingBox) error {
	if !bounds.Contains(c) {
		return errors.New("coordinate outside bounding box")
	}
	return nil
}

// EstimateRoute synthesizes a deterministic route from the postal zones of
// two validated postal codes. The estimate never exceeds MaxRouteKm.
func EstimateRoute(origin, destination string) RouteResult {
	zones := math.Abs(float64(postalZone(origin) - postalZone(destination)))
	distance := math.Min(MaxRouteKm, math.Max(fallbackMinKm, zones*fallbackKmPerZone))
	minutes := distance * 60 / fallbackAvgSpeedKmph
	return NewRouteResult(distance, minutes, minutes, SourceFallback)
}
