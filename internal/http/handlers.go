package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/traffic"
	"github.com/kjstillabower/forecast-service/internal/validation"
)

// Location length bounds for GET /forecast/{location}, in runes.
const (
	LocationMinLength = 1
	LocationMaxLength = 100
)

// ForecastProvider is the lookup the handlers serve. Implemented by service.ForecastService.
type ForecastProvider interface {
	GetWeather(ctx context.Context, location string) (*models.ForecastRecord, error)
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, checks that the cache backend is reachable.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts    ForecastProvider
	healthConfig *HealthConfig
	traffic      *traffic.Tracker
	logger       *zap.Logger

	shuttingDown atomic.Bool

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil (health then only reports
// shutdown); tracker may be nil (a private one is created).
func NewHandler(forecasts ForecastProvider, healthConfig *HealthConfig, tracker *traffic.Tracker, logger *zap.Logger) *Handler {
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		forecasts:    forecasts,
		healthConfig: healthConfig,
		traffic:      tracker,
		logger:       logger,
	}
}

// SetShuttingDown flips the health endpoint to 503 shutting-down.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetHome handles GET /. It describes the API and counts the visit.
func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	observability.HomeVisitsTotal.WithLabelValues("home").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "forecast-service",
		"endpoints": []string{
			"GET /forecast/{location}",
			"POST /forecast (form field: location)",
			"GET /health",
			"GET /metrics",
		},
	})
}

// PostForecast handles POST /forecast. The form field "location" is cleaned and the
// client is redirected to GET /forecast/{location}, or back to / when nothing is left.
func (h *Handler) PostForecast(w http.ResponseWriter, r *http.Request) {
	// The search form posts from the home page, so a submit counts as a home visit too.
	observability.HomeVisitsTotal.WithLabelValues("home").Inc()
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "could not parse form body")
		return
	}
	clean := validation.CleanLocation(r.PostForm.Get("location"))
	target := "/"
	if clean != "" {
		target = "/forecast/" + url.PathEscape(clean)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// GetForecast handles GET /forecast/{location}.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	location, err := validation.ValidateLocation(mux.Vars(r)["location"], LocationMinLength, LocationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	observability.RecordResultReturned(location)

	rec, err := h.forecasts.GetWeather(r.Context(), location)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidLocation) {
			h.traffic.RecordFailed()
		}
		writeServiceError(w, r, err)
		return
	}
	h.traffic.RecordServed()
	if rec == nil {
		writeError(w, r, http.StatusNotFound, "FORECAST_NOT_FOUND", "no forecast data for this location")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"forecastApi": "healthy"}
	if result.reason == "error_rate_breach" {
		checks["forecastApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		checks["cache"] = "healthy"
		if err := h.healthConfig.CachePing(r.Context()); err != nil {
			checks["cache"] = "unhealthy"
			observability.LoggerFromContext(r.Context(), h.logger).Warn("cache ping failed", zap.Error(err))
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "forecast-service",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus decides in order: shutting-down > degraded > healthy. A cache
// outage is reported in checks only; lookups keep working without a cache.
func (h *Handler) computeHealthStatus() healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if h.traffic.Degraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes {"error": {"code", "message", "requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a lookup error to a response. Details stay in the logs.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), nil)
	switch {
	case errors.Is(err, models.ErrInvalidLocation):
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "location is required")
	case errors.Is(err, models.ErrPayloadMalformed):
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_PAYLOAD_INVALID", "Forecast provider returned an unexpected response")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE", "No forecast available right now")
	}
	if logger != nil {
		logger.Debug("forecast lookup failed", zap.Error(err))
	}
}
