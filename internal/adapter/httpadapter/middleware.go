package httpadapter

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/observability"
	"github.com/couchcryptid/haulage-resolver-service/internal/ratelimit"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withMetrics records request duration by matched route pattern and status.
func withMetrics(next http.Handler, metrics *observability.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

// withRateLimit charges each request to the caller's bearer token, or to the
// anonymous identity when there is none.
func withRateLimit(next http.Handler, svc Resolver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Admit(identityOf(r)); err != nil {
			var limitErr *domain.RateLimitError
			if errors.As(err, &limitErr) {
				writeRateLimited(w, limitErr)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityOf(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return ratelimit.Anonymous
	}
	return strings.TrimSpace(token)
}
