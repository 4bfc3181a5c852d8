// Package domain models the values the resolver trades in: coordinates,
// route estimates, fuel prices and the failures of the upstream services
// that produce them.
//
// # Postal Codes
//
// Inputs are German postal codes (Postleitzahlen): exactly five ASCII digits,
// leading zeros significant ("01067" is Dresden). The first two digits form
// the "zone" used by the coarse route fallback:
//
//	97828 → zone 97 (Lower Franconia)
//	10115 → zone 10 (Berlin)
//
// Zones are roughly contiguous geographically, so the absolute difference
// between two zones scaled by a fixed distance per zone gives a usable,
// deterministic distance guess when every routing provider has failed.
//
// # Trust Checks
//
// Provider answers are cross-checked before they are cached:
//
//	Coordinates: must lie inside the configured bounding box
//	             (default lat 47–56, lon 5–16, i.e. Germany).
//	Road distance: must be positive, at most 1000 km, and at most 2.5× the
//	             great-circle (haversine) distance between the endpoints.
//
// The ratio check catches geocoders that silently matched a namesake town in
// another country; the road distance then explodes relative to the straight
// line between the coordinates the route provider was given.
//
// # Sources
//
// Every result carries the name of whatever produced it: an adapter name
// ("mapbox", "nominatim", "osrm", "tankerkoenig"), "cache", "depot" for the
// fixed depot shortcut, or "fallback" for synthesized estimates.
package domain
