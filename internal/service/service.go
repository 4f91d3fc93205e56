package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/forecast"
	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// ForecastService answers forecast lookups read-through: a same-day record in the store
// is returned as is, anything else costs one upstream fetch whose transformed result is
// written back.
type ForecastService struct {
	client          client.ForecastClient
	store           cache.Store
	logger          *zap.Logger
	now             func() time.Time
	misses          *missTracker
	coalescer       *requestCoalescer // nil when coalescing is disabled
}

// Option configures a ForecastService.
type Option func(*ForecastService)

// WithClock overrides the clock used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *ForecastService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCoalescing makes concurrent misses for one location share a single fetch.
// timeout bounds the shared work; zero or negative leaves coalescing off.
func WithCoalescing(timeout time.Duration) Option {
	return func(s *ForecastService) {
		if timeout > 0 {
			s.coalescer = newRequestCoalescer(timeout)
		}
	}
}

// NewForecastService creates a ForecastService. logger may be nil.
func NewForecastService(client client.ForecastClient, store cache.Store, logger *zap.Logger, opts ...Option) *ForecastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ForecastService{
		client:          client,
		store:           store,
		logger:          logger,
		now:             time.Now,
		misses:          newMissTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the local calendar date used for freshness, as YYYY-MM-DD.
func (s *ForecastService) Today() string {
	return s.now().Format(models.DateLayout)
}

// GetWeather returns the forecast for location. The result is nil only when upstream
// answered with no data.
//
// Errors wrap models.ErrInvalidLocation (blank input), models.ErrFetchFailed (upstream
// unreachable or non-OK) or models.ErrPayloadMalformed (200 with an unexpected body).
// Cache trouble never fails a lookup: unreadable stores count as empty and failed saves
// are logged.
func (s *ForecastService) GetWeather(ctx context.Context, location string) (*models.ForecastRecord, error) {
	key := NormalizeLocation(location)
	if key == "" {
		return nil, fmt.Errorf("%w: location is empty", models.ErrInvalidLocation)
	}
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.String("location", key))
	start := time.Now()
	today := s.Today()

	doc := s.load(ctx, logger)
	if rec, ok := cache.Get(doc, key, today); ok {
		observability.CacheHitsTotal.Inc()
		logger.Debug("forecast served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return &rec, nil
	}
	observability.CacheMissesTotal.Inc()

	concurrent, done := s.misses.begin(key)
	defer done()

	logger.Debug("cache miss, fetching upstream")

	var (
		rec *models.ForecastRecord
		err error
	)
	if s.coalescer != nil {
		var absorbed bool
		rec, absorbed, err = s.coalescer.GetOrDo(ctx, key, func(ctx context.Context) (*models.ForecastRecord, error) {
			return s.refresh(ctx, key, today, logger)
		})
		observeMiss(key, concurrent, absorbed)
	} else {
		rec, err = s.refresh(ctx, key, today, logger)
		observeMiss(key, concurrent, false)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("forecast served", zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return rec, nil
}

// refresh fetches, transforms and stores the forecast for key.
func (s *ForecastService) refresh(ctx context.Context, key, today string, logger *zap.Logger) (*models.ForecastRecord, error) {
	raw, err := s.client.FetchForecast(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrPayloadMalformed) {
			logger.Error("upstream payload rejected", zap.Error(err))
		} else {
			logger.Warn("forecast fetch failed", zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
		}
		return nil, fmt.Errorf("forecast for %s: %w", key, err)
	}

	rec, err := forecast.TransformForecast(raw, today)
	if err != nil {
		logger.Error("upstream payload rejected", zap.Error(err))
		return nil, fmt.Errorf("forecast for %s: %w", key, err)
	}
	if rec == nil {
		return nil, nil
	}

	s.save(ctx, key, *rec, logger)
	return rec, nil
}

func (s *ForecastService) load(ctx context.Context, logger *zap.Logger) models.Document {
	start := time.Now()
	doc, err := s.store.Load(ctx)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("load").Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("load", "error").Observe(duration)
		logger.Warn("cache load failed, treating as empty", zap.Error(err))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("load", "success").Observe(duration)
	}
	return doc
}

func (s *ForecastService) save(ctx context.Context, key string, rec models.ForecastRecord, logger *zap.Logger) {
	start := time.Now()
	err := s.store.Save(ctx, key, rec)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("save").Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("save", "error").Observe(duration)
		logger.Error("cache save failed", zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("save", "success").Observe(duration)
}

// NormalizeLocation trims the location and collapses inner whitespace runs to one space.
// Case is kept: "Paris" and "paris" are different cache keys.
func NormalizeLocation(location string) string {
	return strings.Join(strings.Fields(location), " ")
}
