//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey string
	APIURL string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}
	return IntegrationTestConfig{APIKey: apiKey, APIURL: apiURL}
}

// SetupIntegrationClient creates a live forecast client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.VisualCrossingClient {
	t.Helper()
	c, err := client.NewVisualCrossingClient(cfg.APIKey, cfg.APIURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService wires a live client to a file store in a temp dir.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.ForecastService, *cache.FileStore) {
	t.Helper()
	store := cache.NewFileStore(filepath.Join(t.TempDir(), "cache.json"), nil)
	return service.NewForecastService(SetupIntegrationClient(t, cfg), store, nil), store
}
