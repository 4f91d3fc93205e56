package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/traffic"
)

type mockProvider struct {
	mu    sync.Mutex
	rec   *models.ForecastRecord
	err   error
	block bool // wait for ctx.Done()
	got   []string
}

func (m *mockProvider) GetWeather(ctx context.Context, location string) (*models.ForecastRecord, error) {
	m.mu.Lock()
	m.got = append(m.got, location)
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, ctx.Err())
	}
	return m.rec, m.err
}

func (m *mockProvider) locations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.got...)
}

func sampleRecord() *models.ForecastRecord {
	return &models.ForecastRecord{
		Timestamp: "2026-10-17",
		Location:  "Tel Aviv-Yafo, Israel",
		Forecast: []models.DayForecast{
			{Date: "17/10", TempDay: "27.1°C", TempNight: "21.4°C", Humidity: "64.5%", Icon: "/static/icons/clear-day.png"},
		},
	}
}

func newTestRouter(p ForecastProvider, hc *HealthConfig) (http.Handler, *Handler) {
	h := NewHandler(p, hc, traffic.NewTracker(), zap.NewNop())
	return NewRouter(h, RouterConfig{RequestTimeout: time.Second}), h
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandler_GetForecast_Success(t *testing.T) {
	p := &mockProvider{rec: sampleRecord()}
	router, _ := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodGet, "/forecast/tel%20aviv", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	raw := w.Body.String()
	for _, want := range []string{`"timestamp":"2026-10-17"`, `"temp_day":"27.1°C"`, `"icon":"/static/icons/clear-day.png"`} {
		if !strings.Contains(raw, want) {
			t.Errorf("body missing %s: %s", want, raw)
		}
	}
	if got := p.locations(); len(got) != 1 || got[0] != "tel aviv" {
		t.Errorf("provider got %v, want [tel aviv]", got)
	}
}

func TestHandler_GetForecast_PlaceNamePunctuation(t *testing.T) {
	p := &mockProvider{rec: sampleRecord()}
	router, _ := newTestRouter(p, nil)

	for _, path := range []string{"/forecast/St.%20Louis", "/forecast/L'Aquila"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
	got := p.locations()
	if len(got) != 2 || got[0] != "St. Louis" || got[1] != "L'Aquila" {
		t.Errorf("provider got %v, want [St. Louis L'Aquila]", got)
	}
}

func TestHandler_GetForecast_InvalidLocation(t *testing.T) {
	p := &mockProvider{rec: sampleRecord()}
	router, _ := newTestRouter(p, nil)

	for _, path := range []string{
		"/forecast/%20%20",
		"/forecast/" + strings.Repeat("a", LocationMaxLength+1),
		"/forecast/berlin%3F",
	} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if body := decodeError(t, w); body.Error.Code != "INVALID_LOCATION" {
				t.Errorf("code = %q, want INVALID_LOCATION", body.Error.Code)
			}
		})
	}
	if n := len(p.locations()); n != 0 {
		t.Errorf("provider called %d times for invalid input", n)
	}
}

func TestHandler_GetForecast_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"fetch failed", fmt.Errorf("forecast for x: %w", models.ErrFetchFailed), http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE"},
		{"malformed payload", fmt.Errorf("forecast for x: %w", models.ErrPayloadMalformed), http.StatusBadGateway, "UPSTREAM_PAYLOAD_INVALID"},
		{"invalid location", models.ErrInvalidLocation, http.StatusBadRequest, "INVALID_LOCATION"},
		{"unknown", errors.New("boom"), http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(&mockProvider{err: tc.err}, nil)
			req := httptest.NewRequest(http.MethodGet, "/forecast/berlin", nil)
			req.Header.Set("X-Correlation-ID", "corr-123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			body := decodeError(t, w)
			if body.Error.Code != tc.wantBody {
				t.Errorf("code = %q, want %q", body.Error.Code, tc.wantBody)
			}
			if body.Error.RequestID != "corr-123" {
				t.Errorf("requestId = %q, want corr-123", body.Error.RequestID)
			}
			if strings.Contains(body.Error.Message, "boom") {
				t.Error("internal error detail leaked to the client")
			}
		})
	}
}

func TestHandler_GetForecast_NoData(t *testing.T) {
	router, _ := newTestRouter(&mockProvider{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/nowhere", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandler_GetForecast_RequestTimeout(t *testing.T) {
	h := NewHandler(&mockProvider{block: true}, nil, nil, nil)
	router := NewRouter(h, RouterConfig{RequestTimeout: 30 * time.Millisecond})

	start := time.Now()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/berlin", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v, want the timeout to cut it short", elapsed)
	}
}

func TestHandler_PostForecast_Redirects(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{"cleaned", " tel/aviv 1@ ]", "/forecast/tel%20aviv"},
		{"plain", "Berlin", "/forecast/Berlin"},
		{"nothing left", "1234!?", "/"},
		{"missing field", "", "/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(&mockProvider{}, nil)
			form := url.Values{}
			if tc.location != "" {
				form.Set("location", tc.location)
			}
			req := httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", w.Code)
			}
			if got := w.Header().Get("Location"); got != tc.want {
				t.Errorf("Location = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHandler_GetHome(t *testing.T) {
	router, _ := newTestRouter(&mockProvider{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/forecast/{location}") {
		t.Errorf("GET / = %d %s", w.Code, w.Body.String())
	}
}

func TestHandler_GetHealth(t *testing.T) {
	pingErr := errors.New("connection refused")
	tests := []struct {
		name       string
		hc         *HealthConfig
		failures   int
		served     int
		shutdown   bool
		wantCode   int
		wantStatus string
		wantCache  string
	}{
		{"no config", nil, 0, 0, false, http.StatusOK, "healthy", ""},
		{"healthy with cache", &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, CachePing: func(context.Context) error { return nil }}, 1, 9, false, http.StatusOK, "healthy", "healthy"},
		{"degraded", &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, 5, 5, false, http.StatusServiceUnavailable, "degraded", ""},
		{"cache down stays healthy", &HealthConfig{CachePing: func(context.Context) error { return pingErr }}, 0, 0, false, http.StatusOK, "healthy", "unhealthy"},
		{"shutting down", &HealthConfig{}, 0, 0, true, http.StatusServiceUnavailable, "shutting-down", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker := traffic.NewTracker()
			for i := 0; i < tc.failures; i++ {
				tracker.RecordFailed()
			}
			for i := 0; i < tc.served; i++ {
				tracker.RecordServed()
			}
			h := NewHandler(&mockProvider{}, tc.hc, tracker, nil)
			h.SetShuttingDown(tc.shutdown)

			w := httptest.NewRecorder()
			NewRouter(h, RouterConfig{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tc.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tc.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tc.wantStatus)
			}
			if body.Checks["cache"] != tc.wantCache {
				t.Errorf("checks.cache = %q, want %q", body.Checks["cache"], tc.wantCache)
			}
		})
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tracker := traffic.NewTracker()
	h := NewHandler(&mockProvider{}, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, tracker, zap.New(core))
	router := NewRouter(h, RouterConfig{})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	tracker.RecordFailed()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["current_status"]; got != "degraded" {
		t.Errorf("current_status = %v, want degraded", got)
	}
}

func TestHandler_GetForecast_FeedsHealth(t *testing.T) {
	tracker := traffic.NewTracker()
	h := NewHandler(&mockProvider{err: models.ErrFetchFailed}, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, tracker, nil)
	router := NewRouter(h, RouterConfig{})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forecast/berlin", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health after failed lookup = %d, want 503", w.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(&mockProvider{rec: sampleRecord()}, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forecast/berlin", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`homeVisitsTotal{page="home"}`, `resultsReturnedTotal{page="other"}`, `route="/forecast/{location}"`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestHandler_PageCounters(t *testing.T) {
	p := &mockProvider{err: fmt.Errorf("%w: upstream down", models.ErrFetchFailed)}
	router, _ := newTestRouter(p, nil)
	home := observability.HomeVisitsTotal.WithLabelValues("home")
	results := observability.ResultsReturnedTotal.WithLabelValues("other")
	homeBefore, resultsBefore := testutil.ToFloat64(home), testutil.ToFloat64(results)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/lyon", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := testutil.ToFloat64(results) - resultsBefore; got != 1 {
		t.Errorf("results counted = %v, want 1 even when the lookup fails", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/lyon%3F", nil))
	if got := testutil.ToFloat64(results) - resultsBefore; got != 1 {
		t.Errorf("results counted = %v, want invalid locations left uncounted", got)
	}

	form := url.Values{"location": {"lyon"}}
	req := httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := testutil.ToFloat64(home) - homeBefore; got != 2 {
		t.Errorf("home visits = %v, want 2 (form submit and GET /)", got)
	}
}
