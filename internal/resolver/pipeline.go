package resolver

import (
	"context"
	"fmt"

	"github.com/couchcryptid/haulage-resolver-service/internal/cache"
	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// attempt is one provider call in priority order.
type attempt[T any] struct {
	provider string
	call     func(ctx context.Context) (T, error)
}

// plan configures resolveWithFallback for one request.
type plan[T any] struct {
	operation string
	key       string
	cache     *cache.Store[T]

	// prepare runs once per upstream resolution, after the cache missed.
	// An error skips every attempt and goes straight to the estimate.
	prepare  func(ctx context.Context) error
	attempts []attempt[T]
	// validate rejects provider answers that fail a trust check.
	validate func(T) error
	// estimate synthesizes a value once every attempt failed. Nil means the
	// operation has no fallback.
	estimate func() T
}

// outcome is what resolveWithFallback settled on. ok is false only when
// every attempt failed and the plan has no estimate.
type outcome[T any] struct {
	value  T
	source string
	ok     bool
}

const sourceCache = "cache"

// resolveWithFallback runs cache check, provider attempts in order,
// validation, cache write and fallback estimate. Concurrent misses for the
// same key share one upstream resolution.
func resolveWithFallback[T any](ctx context.Context, s *Service, p plan[T]) outcome[T] {
	ctx, span := observability.StartSpan(ctx, "resolve."+p.operation, attribute.String("cache.key", p.key))
	defer span.End()

	if v, ok := lookup(s, p.operation, p.cache, p.key); ok {
		span.SetAttributes(attribute.String("source", sourceCache))
		return outcome[T]{value: v, source: sourceCache, ok: true}
	}

	// The flight outlives the caller that started it; provider timeouts bound it.
	flightCtx := context.WithoutCancel(ctx)
	res, _, shared := s.flights.Do(p.operation+"|"+p.key, func() (any, error) {
		if v, _, fresh := p.cache.Get(p.key); fresh {
			return outcome[T]{value: v, source: sourceCache, ok: true}, nil
		}
		return resolveUpstream(flightCtx, s, p), nil
	})
	if shared {
		s.metrics.Coalesced.WithLabelValues(p.operation).Inc()
	}

	out := res.(outcome[T])
	span.SetAttributes(attribute.String("source", out.source), attribute.Bool("resolved", out.ok))
	return out
}

func resolveUpstream[T any](ctx context.Context, s *Service, p plan[T]) outcome[T] {
	prepared := true
	if p.prepare != nil {
		if err := p.prepare(ctx); err != nil {
			s.logger.WarnContext(ctx, "skipping providers", "operation", p.operation, "key", p.key, "error", err)
			prepared = false
		}
	}

	if prepared {
		for _, a := range p.attempts {
			v, err := runAttempt(ctx, s, p, a)
			if err != nil {
				continue
			}
			p.cache.Set(p.key, v)
			s.metrics.CacheEntries.WithLabelValues(p.operation).Set(float64(p.cache.Len()))
			s.publish(ctx, p.operation, p.key, a.provider, v)
			return outcome[T]{value: v, source: a.provider, ok: true}
		}
	}

	s.metrics.Fallbacks.WithLabelValues(p.operation).Inc()
	if p.estimate == nil {
		s.logger.InfoContext(ctx, "all providers failed", "operation", p.operation, "key", p.key)
		return outcome[T]{source: domain.SourceFallback}
	}
	v := p.estimate()
	s.logger.InfoContext(ctx, "using fallback estimate", "operation", p.operation, "key", p.key)
	s.publish(ctx, p.operation, p.key, domain.SourceFallback, v)
	return outcome[T]{value: v, source: domain.SourceFallback, ok: true}
}

// runAttempt calls one provider and validates its answer. Failures are
// logged and counted, never propagated past the fallback chain.
func runAttempt[T any](ctx context.Context, s *Service, p plan[T], a attempt[T]) (T, error) {
	ctx, span := observability.StartSpan(ctx, "provider."+a.provider,
		attribute.String("operation", p.operation))

	start := s.clock.Now()
	v, err := safeCall(ctx, a)
	s.metrics.ProviderDuration.WithLabelValues(p.operation, a.provider).Observe(s.clock.Since(start).Seconds())

	if err == nil && p.validate != nil {
		if verr := p.validate(v); verr != nil {
			err = domain.NewProviderError(a.provider, domain.ReasonInvalid, verr)
		}
	}
	observability.EndSpan(span, err)

	if err != nil {
		reason := domain.ReasonOf(err)
		s.metrics.ProviderRequests.WithLabelValues(p.operation, a.provider, string(reason)).Inc()
		s.logger.WarnContext(ctx, "provider attempt failed",
			"operation", p.operation,
			"provider", a.provider,
			"key", p.key,
			"reason", reason,
			"error", err,
		)
		var zero T
		return zero, err
	}
	s.metrics.ProviderRequests.WithLabelValues(p.operation, a.provider, "success").Inc()
	return v, nil
}

// safeCall converts a panicking adapter into a provider failure.
func safeCall[T any](ctx context.Context, a attempt[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewProviderError(a.provider, domain.ReasonTransport, fmt.Errorf("panic: %v", r))
		}
	}()
	return a.call(ctx)
}

// lookup checks the cache and records the lookup result.
func lookup[T any](s *Service, operation string, c *cache.Store[T], key string) (T, bool) {
	v, found, fresh := c.Get(key)
	switch {
	case fresh:
		s.metrics.CacheLookups.WithLabelValues(operation, "hit").Inc()
		return v, true
	case found:
		s.metrics.CacheLookups.WithLabelValues(operation, "stale").Inc()
	default:
		s.metrics.CacheLookups.WithLabelValues(operation, "miss").Inc()
	}
	var zero T
	return zero, false
}

func (s *Service) publish(ctx context.Context, operation, key, source string, payload any) {
	event := domain.ResolutionEvent{
		Operation:  operation,
		Key:        key,
		Source:     source,
		Payload:    payload,
		ResolvedAt: s.clock.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.Published.WithLabelValues("error").Inc()
		s.logger.WarnContext(ctx, "publish resolution event failed", "operation", operation, "key", key, "error", err)
		return
	}
	s.metrics.Published.WithLabelValues("success").Inc()
}
