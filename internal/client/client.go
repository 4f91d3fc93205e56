package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// DefaultAPIURL is the Visual Crossing timeline endpoint; the location is appended as a path segment.
const DefaultAPIURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// ForecastClient fetches the raw daily forecast for a location.
// Every failure to obtain a 200 response wraps models.ErrFetchFailed; a 200 response
// that does not match the expected shape wraps models.ErrPayloadMalformed.
type ForecastClient interface {
	FetchForecast(ctx context.Context, location string) (*RawForecast, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrTimeout          = errors.New("request timeout")
	ErrCircuitOpen      = errors.New("circuit breaker open")
)

// VisualCrossingClient calls the timeline API once per FetchForecast. It never retries.
type VisualCrossingClient struct {
	apiKey   string
	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	validate *validator.Validate
}

// NewVisualCrossingClient returns a client for apiURL (DefaultAPIURL when empty) that gives
// each call at most timeout.
func NewVisualCrossingClient(apiKey, apiURL string, timeout time.Duration) (*VisualCrossingClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &VisualCrossingClient{
		apiKey:   apiKey,
		http:     httpClient,
		validate: validator.New(),
	}, nil
}

// BreakerConfig configures the optional circuit breaker around upstream calls.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before allowing a probe.
	Timeout time.Duration
	// HalfOpenRequests probes must succeed to close it again.
	HalfOpenRequests uint32
	OnStateChange    func(from, to string)
}

// SetCircuitBreaker guards upstream calls with a breaker. While open, FetchForecast
// fails fast with ErrCircuitOpen (and models.ErrFetchFailed).
func (c *VisualCrossingClient) SetCircuitBreaker(cfg BreakerConfig) {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "forecast_api",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// An unknown location says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(from.String(), to.String())
			}
		},
	})
}

// FetchForecast issues one GET for location and decodes the daily forecast.
func (c *VisualCrossingClient) FetchForecast(ctx context.Context, location string) (*RawForecast, error) {
	body, err := c.fetch(ctx, location)
	if err != nil {
		observability.ForecastAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	raw, err := c.decode(body)
	if err != nil {
		observability.ForecastAPIErrorsTotal.WithLabelValues(string(ErrorCategoryParsing)).Inc()
		return nil, fmt.Errorf("%w: %w", models.ErrPayloadMalformed, err)
	}
	return raw, nil
}

func (c *VisualCrossingClient) fetch(ctx context.Context, location string) ([]byte, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, location)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, location)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *VisualCrossingClient) callAPI(ctx context.Context, location string) ([]byte, error) {
	start := time.Now()

	req := c.http.R().
		SetContext(ctx).
		SetPathParam("location", location).
		SetQueryParams(map[string]string{
			"unitGroup":   "metric",
			"include":     "days",
			"key":         c.apiKey,
			"contentType": "json",
		})
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.SetHeader("X-Correlation-ID", corrID)
	}

	resp, err := req.Get("/{location}")
	if err != nil {
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		observability.ForecastAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	status := statusLabel(resp.StatusCode())
	observability.ForecastAPICallsTotal.WithLabelValues(status).Inc()
	observability.ForecastAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := statusError(resp.StatusCode()); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *VisualCrossingClient) decode(body []byte) (*RawForecast, error) {
	var raw RawForecast
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	// Only the served days have to be well formed.
	if len(raw.Days) > models.MaxForecastDays {
		raw.Days = raw.Days[:models.MaxForecastDays]
	}
	if err := c.validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("validate response: %w", err)
	}
	return &raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusError maps a non-200 status to a sentinel. Only 200 counts as success.
func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, code)
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", ErrLocationNotFound, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func statusLabel(statusCode int) string {
	if statusCode == http.StatusOK {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
