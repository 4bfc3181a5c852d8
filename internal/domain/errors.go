package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no provider produced a usable geocoding result.
var ErrNotFound = errors.New("not found")

// InputError marks a malformed caller request. It is returned before any
// provider is contacted and maps to a 400-class response.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewInputError builds an InputError for the named request field.
func NewInputError(field, format string, args ...any) *InputError {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FailureReason classifies why a provider attempt did not yield a result.
type FailureReason string

const (
	ReasonStatus    FailureReason = "status"     // non-2xx HTTP status
	ReasonMalformed FailureReason = "malformed"  // undecodable or empty body
	ReasonNoResults FailureReason = "no_results" // provider reported no match or a logical error
	ReasonTransport FailureReason = "transport"  // network error or timeout
	ReasonInvalid   FailureReason = "invalid"    // answer failed a trust check
)

// ProviderError is the failure value of a single provider attempt. It is
// absorbed by the fallback chain and never reaches the caller.
type ProviderError struct {
	Provider string
	Reason   FailureReason
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a failure of provider.
func NewProviderError(provider string, reason FailureReason, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err, defaulting to transport
// for errors that did not originate from an adapter.
func ReasonOf(err error) FailureReason {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonTransport
}

// RateLimitError is returned when a caller exceeded its request window.
type RateLimitError struct {
	Identity   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}
