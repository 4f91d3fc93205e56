//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/testhelpers"
)

// TestIntegration_ForecastRoundTrip calls the live forecast API (needs WEATHER_API_KEY)
// and checks the second lookup is served from the cache file.
func TestIntegration_ForecastRoundTrip(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, store := testhelpers.SetupIntegrationService(t, cfg)

	h := NewHandler(svc, nil, nil, nil)
	router := NewRouter(h, RouterConfig{RequestTimeout: 15 * time.Second})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/berlin", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var rec models.ForecastRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Location == "" || len(rec.Forecast) == 0 || len(rec.Forecast) > models.MaxForecastDays {
		t.Errorf("unexpected record %+v", rec)
	}

	doc, err := store.Load(t.Context())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := doc["berlin"]; !ok {
		t.Error("forecast was not written to the cache file")
	}
}
