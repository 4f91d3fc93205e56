package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// ForecastFetcher is implemented by the service layer. Warming goes through it so
// warmed entries follow the same freshness and store rules as user requests.
type ForecastFetcher interface {
	GetWeather(ctx context.Context, location string) (*models.ForecastRecord, error)
}

// Warmer prefetches forecasts for a fixed list of locations.
type Warmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger

	scheduler *gocron.Scheduler
}

// NewWarmer creates a Warmer. logger may be nil.
func NewWarmer(fetcher ForecastFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every location concurrently. Locations already fresh in the store cost
// no upstream call. Returns the joined per-location errors, if any.
func (w *Warmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loc := range locations {
		wg.Add(1)
		go func(loc string) {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, loc); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", loc, err))
				mu.Unlock()
			}
		}(loc)
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start runs Warm immediately and then every interval on a background scheduler.
// Each run is bounded by runTimeout; runs never overlap.
func (w *Warmer) Start(locations []string, interval, runTimeout time.Duration) error {
	if len(locations) == 0 {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("warming interval must be positive, got %s", interval)
	}

	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts the scheduler started by Start. Safe to call when Start was not.
func (w *Warmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
