package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/traffic"
)

// RouterConfig holds what NewRouter needs besides the handler.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	Tracker        *traffic.Tracker
	RequestTimeout time.Duration
}

// NewRouter wires the routes:
//
//	GET  /                    landing (counts home visits)
//	POST /forecast            form submit, 303 to /forecast/{location}
//	GET  /forecast/{location} forecast JSON
//	GET  /health
//	GET  /metrics
//
// The forecast routes are rate limited and carry the request timeout.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/", h.GetHome).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	forecastRouter := router.PathPrefix("/forecast").Subrouter()
	forecastRouter.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	if cfg.RequestTimeout > 0 {
		forecastRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	forecastRouter.HandleFunc("", h.PostForecast).Methods(http.MethodPost)
	forecastRouter.HandleFunc("/{location}", h.GetForecast).Methods(http.MethodGet)

	return router
}
