// Package nominatim is the secondary geocoder, backed by an OpenStreetMap
// Nominatim instance. The public instance allows one request per second,
// which the client enforces itself.
package nominatim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/adapter/upstream"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	Name           = "nominatim"
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
)

// errSlotTooFar is returned when the next free request slot lies beyond the
// request timeout.
var errSlotTooFar = errors.New("request slot beyond timeout")

type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	userAgent   string
	minInterval time.Duration
	clock       clockwork.Clock

	mu          sync.Mutex
	lastRequest time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTimeout bounds both the HTTP request and the wait for a request slot.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient = upstream.NewHTTPClient(timeout)
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithMinInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.minInterval = interval
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  upstream.NewHTTPClient(5 * time.Second),
		timeout:     5 * time.Second,
		userAgent:   "haulage-resolver/1.0",
		minInterval: time.Second,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// Geocode resolves a postal code (structured search) or free-text address
// restricted to Germany.
func (c *Client) Geocode(ctx context.Context, q domain.GeocodeQuery) (domain.Coordinate, error) {
	if err := c.waitTurn(ctx); err != nil {
		return domain.Coordinate{}, domain.NewProviderError(Name, domain.ReasonTransport, err)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", "de")
	if q.PostalCode != "" {
		params.Set("postalcode", q.PostalCode)
	} else {
		params.Set("q", q.Text)
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + "/search?" + params.Encode()

	var header http.Header
	if strings.TrimSpace(c.userAgent) != "" {
		header = http.Header{"User-Agent": {c.userAgent}}
	}

	var results []place
	if err := upstream.GetJSON(ctx, c.httpClient, Name, endpoint, header, &results); err != nil {
		return domain.Coordinate{}, err
	}
	if len(results) == 0 {
		return domain.Coordinate{}, upstream.NoResults(Name, "no places for %q", q.Text)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return domain.Coordinate{}, upstream.Malformed(Name, "lat %q: %v", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return domain.Coordinate{}, upstream.Malformed(Name, "lon %q: %v", results[0].Lon, err)
	}
	return domain.Coordinate{Lat: lat, Lon: lon}, nil
}

// waitTurn spaces requests at least minInterval apart. A caller whose slot
// is further away than the timeout gives up without reserving it.
func (c *Client) waitTurn(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	c.mu.Lock()
	now := c.clock.Now()
	next := c.lastRequest.Add(c.minInterval)
	if !next.After(now) {
		c.lastRequest = now
		c.mu.Unlock()
		return nil
	}
	wait := next.Sub(now)
	if c.timeout > 0 && wait > c.timeout {
		c.mu.Unlock()
		return fmt.Errorf("%w: next in %s, timeout %s", errSlotTooFar, wait, c.timeout)
	}
	c.lastRequest = next
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(wait):
		return nil
	}
}

// Nominatim returns coordinates as strings.
type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}
