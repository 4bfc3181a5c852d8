// Package tankerkoenig is the fuel-price aggregator, backed by the
// Tankerkönig radius search over the German market transparency unit data.
package tankerkoenig

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/upstream"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
)

const (
	Name           = "tankerkoenig"
	DefaultBaseURL = "https://creativecommons.tankerkoenig.de"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Tankerkönig client. An empty baseURL uses the public API.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: upstream.NewHTTPClient(timeout),
	}
}

func (c *Client) Name() string { return Name }

// Prices aggregates the prices of open stations within radiusKm of at.
func (c *Client) Prices(ctx context.Context, at domain.Coordinate, radiusKm int, fuel domain.FuelType) (domain.StationPrices, error) {
	params := url.Values{
		"lat":    {strconv.FormatFloat(at.Lat, 'f', 6, 64)},
		"lng":    {strconv.FormatFloat(at.Lon, 'f', 6, 64)},
		"rad":    {strconv.Itoa(radiusKm)},
		"sort":   {"dist"},
		"type":   {string(fuel)},
		"apikey": {c.apiKey},
	}

	var resp listResponse
	if err := upstream.GetJSON(ctx, c.httpClient, Name, c.baseURL+"/json/list.php?"+params.Encode(), nil, &resp); err != nil {
		return domain.StationPrices{}, err
	}
	if !resp.OK {
		return domain.StationPrices{}, upstream.NoResults(Name, "api error: %s", resp.Message)
	}
	return aggregate(resp.Stations)
}

func aggregate(stations []station) (domain.StationPrices, error) {
	var (
		sum      float64
		count    int
		cheapest = math.Inf(1)
	)
	for _, s := range stations {
		// Closed stations report stale prices; price is null or false when unknown.
		p, ok := s.Price.(float64)
		if !s.IsOpen || !ok || p <= 0 {
			continue
		}
		sum += p
		count++
		cheapest = math.Min(cheapest, p)
	}
	if count == 0 {
		return domain.StationPrices{}, upstream.NoResults(Name, "no open stations with a price among %d", len(stations))
	}
	return domain.StationPrices{
		Cheapest:     cheapest,
		Average:      roundTo(sum/float64(count), 3),
		StationCount: count,
	}, nil
}

// roundTo rounds to the 0.1 cent resolution fuel prices are quoted in.
func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

type listResponse struct {
	OK       bool      `json:"ok"`
	Message  string    `json:"message"`
	Stations []station `json:"stations"`
}

type station struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	IsOpen bool    `json:"isOpen"`
	Dist   float64 `json:"dist"`
	Price  any     `json:"price"`
}
