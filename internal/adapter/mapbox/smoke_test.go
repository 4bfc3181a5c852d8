//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_GeocodePostalCode(t *testing.T) {
	c := smokeClient(t)

	coord, err := c.Geocode(context.Background(), domain.GeocodeQuery{Text: "97070", PostalCode: "97070"})
	require.NoError(t, err)

	assert.InDelta(t, 49.79, coord.Lat, 0.1, "lat should be near Würzburg")
	assert.InDelta(t, 9.93, coord.Lon, 0.1, "lon should be near Würzburg")
}

func TestSmoke_Route(t *testing.T) {
	c := smokeClient(t)

	// Marktheidenfeld → Würzburg
	leg, err := c.Route(context.Background(),
		domain.Coordinate{Lat: 49.8440, Lon: 9.6010},
		domain.Coordinate{Lat: 49.7913, Lon: 9.9534})
	require.NoError(t, err)

	assert.InDelta(t, 35, leg.DistanceKm, 15)
	assert.Greater(t, leg.DurationMin, 0.0)
	assert.NoError(t, domain.ValidateRouteDistance(leg.DistanceKm, 25))
}
