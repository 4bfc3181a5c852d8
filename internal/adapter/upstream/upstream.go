// Package upstream holds the request plumbing shared by the provider
// adapters: one GET, one JSON decode, and failures classified into
// domain.ProviderError reasons.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
)

// maxErrorBody bounds how much of a non-2xx body ends up in an error message.
const maxErrorBody = 512

// NewHTTPClient returns a client whose every call is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// GetJSON issues a GET to fullURL and decodes the JSON body into out.
// Every failure is returned as a *domain.ProviderError for provider.
func GetJSON(ctx context.Context, client *http.Client, provider, fullURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.NewProviderError(provider, domain.ReasonTransport, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.NewProviderError(provider, domain.ReasonTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.NewProviderError(provider, domain.ReasonStatus,
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewProviderError(provider, domain.ReasonMalformed, errors.New("empty response body"))
		}
		// Timeouts can surface while streaming the body.
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return domain.NewProviderError(provider, domain.ReasonTransport, err)
		}
		return domain.NewProviderError(provider, domain.ReasonMalformed, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// NoResults reports a provider-side logical failure.
func NoResults(provider, format string, args ...any) error {
	return domain.NewProviderError(provider, domain.ReasonNoResults, fmt.Errorf(format, args...))
}

// Malformed reports a decodable body that lacks required fields.
func Malformed(provider, format string, args ...any) error {
	return domain.NewProviderError(provider, domain.ReasonMalformed, fmt.Errorf(format, args...))
}
