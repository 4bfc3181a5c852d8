package mapbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/upstream"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
)

// Name identifies Mapbox in metrics, logs and result sources.
const Name = "mapbox"

// Client is the primary geocoder and the primary, traffic-aware router,
// backed by the Mapbox Geocoding and Directions APIs.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Mapbox client whose requests are bounded by timeout.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: upstream.NewHTTPClient(timeout),
		baseURL:    "https://api.mapbox.com",
		logger:     logger,
	}
}

func (c *Client) Name() string { return Name }

// Geocode converts a German postal code or address to coordinates.
func (c *Client) Geocode(ctx context.Context, q domain.GeocodeQuery) (domain.Coordinate, error) {
	types := "address,postcode,place,locality"
	if q.PostalCode != "" {
		types = "postcode"
	}

	u := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json", c.baseURL, url.PathEscape(q.Text))
	params := url.Values{
		"access_token": {c.token},
		"country":      {"de"},
		"limit":        {"1"},
		"types":        {types},
	}

	var resp geocodeResponse
	if err := upstream.GetJSON(ctx, c.httpClient, Name, u+"?"+params.Encode(), nil, &resp); err != nil {
		return domain.Coordinate{}, err
	}
	if len(resp.Features) == 0 {
		return domain.Coordinate{}, upstream.NoResults(Name, "no features for %q", q.Text)
	}

	f := resp.Features[0]
	if len(f.Center) != 2 {
		return domain.Coordinate{}, upstream.Malformed(Name, "feature %q has %d center values", f.PlaceName, len(f.Center))
	}
	c.logger.DebugContext(ctx, "mapbox geocode", "query", q.Text, "place", f.PlaceName, "relevance", f.Relevance)

	// Mapbox uses lon,lat order.
	return domain.Coordinate{Lat: f.Center[1], Lon: f.Center[0]}, nil
}

// Route returns the traffic-aware driving route between two coordinates.
// The typical duration serves as the no-traffic baseline.
func (c *Client) Route(ctx context.Context, from, to domain.Coordinate) (domain.RouteLeg, error) {
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", from.Lon, from.Lat, to.Lon, to.Lat)
	u := fmt.Sprintf("%s/directions/v5/mapbox/driving-traffic/%s", c.baseURL, coords)
	params := url.Values{
		"access_token": {c.token},
		"overview":     {"false"},
	}

	var resp directionsResponse
	if err := upstream.GetJSON(ctx, c.httpClient, Name, u+"?"+params.Encode(), nil, &resp); err != nil {
		return domain.RouteLeg{}, err
	}
	if resp.Code != "Ok" {
		return domain.RouteLeg{}, upstream.NoResults(Name, "directions code %q: %s", resp.Code, resp.Message)
	}
	if len(resp.Routes) == 0 {
		return domain.RouteLeg{}, upstream.NoResults(Name, "no routes")
	}

	r := resp.Routes[0]
	noTraffic := r.Duration
	if r.DurationTypical > 0 {
		noTraffic = r.DurationTypical
	}
	return domain.RouteLeg{
		DistanceKm:           r.Distance / 1000,
		DurationMin:          r.Duration / 60,
		DurationNoTrafficMin: noTraffic / 60,
	}, nil
}

// Mapbox API response types.

type geocodeResponse struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}

type directionsResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance        float64 `json:"distance"`         // meters
	Duration        float64 `json:"duration"`         // seconds, live traffic
	DurationTypical float64 `json:"duration_typical"` // seconds, typical traffic
}
