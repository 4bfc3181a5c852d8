package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	"github.com/couchcryptid/haulage-resolver-service/internal/resolver"
)

const maxBatchBodyBytes = 64 << 10

type handler struct {
	svc    Resolver
	logger *slog.Logger
}

type batchRequest struct {
	Addresses []string `json:"addresses"`
}

type batchResponse struct {
	Results []domain.GeocodeResult `json:"results"`
}

func (h *handler) geocode(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ResolveCoordinates(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) batchGeocode(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	results, err := h.svc.BatchResolveCoordinates(r.Context(), req.Addresses)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (h *handler) route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.ResolveRoute(r.Context(), q.Get("origin"), q.Get("destination"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) fuelPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	radius := resolver.DefaultFuelRadiusKm
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "radius: must be an integer")
			return
		}
		radius = n
	}

	res, err := h.svc.ResolveFuelPrice(r.Context(), q.Get("postalCode"), radius)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *domain.InputError
	var limitErr *domain.RateLimitError
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Error())
	case errors.As(err, &limitErr):
		writeRateLimited(w, limitErr)
	case r.Context().Err() != nil:
		// Client went away; nobody reads the body.
		h.logger.DebugContext(r.Context(), "request cancelled", "path", r.URL.Path, "error", err)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeRateLimited(w http.ResponseWriter, err *domain.RateLimitError) {
	seconds := int(math.Ceil(err.RetryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	writeError(w, http.StatusTooManyRequests, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
