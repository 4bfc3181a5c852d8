package resolver

import (
	"strconv"
	"strings"
)

// Operation names label metrics, spans, events and in-flight keys.
const (
	opGeocode   = "geocode"
	opRoute     = "route"
	opFuelPrice = "fuel_price"
)

// geocodeKey normalizes free text so "Hauptstr. 1 " and "hauptstr.  1"
// share an entry. Postal codes pass through unchanged.
func geocodeKey(query string) string {
	return "geocode-" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func routeKey(origin, destination string) string {
	return origin + "->" + destination
}

func fuelKey(postalCode string, radiusKm int) string {
	return postalCode + "-" + strconv.Itoa(radiusKm)
}
