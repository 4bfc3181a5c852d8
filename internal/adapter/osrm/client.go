// Package osrm is the secondary router, backed by an OSRM instance. OSRM
// has no traffic model, so both durations it reports are the same.
package osrm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/upstream"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
)

const Name = "osrm"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an OSRM client for the instance at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: upstream.NewHTTPClient(timeout),
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Route(ctx context.Context, from, to domain.Coordinate) (domain.RouteLeg, error) {
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		c.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)

	var resp routeResponse
	if err := upstream.GetJSON(ctx, c.httpClient, Name, u, nil, &resp); err != nil {
		return domain.RouteLeg{}, err
	}
	if resp.Code != "Ok" {
		return domain.RouteLeg{}, upstream.NoResults(Name, "code %q: %s", resp.Code, resp.Message)
	}
	if len(resp.Routes) == 0 {
		return domain.RouteLeg{}, upstream.NoResults(Name, "no routes")
	}

	r := resp.Routes[0]
	return domain.RouteLeg{
		DistanceKm:           r.Distance / 1000,
		DurationMin:          r.Duration / 60,
		DurationNoTrafficMin: r.Duration / 60,
	}, nil
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}
