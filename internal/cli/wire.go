package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/config"
	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/service"
)

// components is everything a command needs, built from one Config.
type components struct {
	store     cache.Store
	cachePing func(ctx context.Context) error // nil for file and memory backends
	service   *service.ForecastService
	closers   []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func build(cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}

	if err := c.openStore(cfg, logger); err != nil {
		return nil, err
	}

	forecastClient, err := client.NewVisualCrossingClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("forecast client: %w", err)
	}
	if cfg.BreakerEnabled {
		forecastClient.SetCircuitBreaker(client.BreakerConfig{
			FailureThreshold: uint32(cfg.BreakerFailureThreshold),
			Timeout:          cfg.BreakerTimeout,
			HalfOpenRequests: uint32(cfg.BreakerHalfOpenRequests),
			OnStateChange: func(from, to string) {
				observability.CircuitBreakerTransitionsTotal.WithLabelValues("forecast_api", from, to).Inc()
				observability.CircuitBreakerState.WithLabelValues("forecast_api").Set(observability.CircuitBreakerStateValue(to))
				logger.Warn("circuit breaker state change", zap.String("from", from), zap.String("to", to))
			},
		})
		observability.CircuitBreakerState.WithLabelValues("forecast_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	var opts []service.Option
	if cfg.CoalesceEnabled {
		opts = append(opts, service.WithCoalescing(cfg.CoalesceTimeout))
	}
	c.service = service.NewForecastService(forecastClient, c.store, logger, opts...)
	return c, nil
}

func (c *components) openStore(cfg *config.Config, logger *zap.Logger) error {
	switch cfg.CacheBackend {
	case config.BackendMemory:
		c.store = cache.NewMemoryStore()
		logger.Info("cache backend: memory")
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return fmt.Errorf("memcached cache: %w", err)
		}
		c.store, c.cachePing = mc, mc.Ping
		c.closers = append(c.closers, mc.Close)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.BackendRedis:
		rs, err := cache.NewRedisStore(cfg.RedisURL, cfg.RedisHashKey)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		c.store, c.cachePing = rs, rs.Ping
		c.closers = append(c.closers, rs.Close)
		logger.Info("cache backend: redis", zap.String("hash_key", cfg.RedisHashKey))
	default:
		c.store = cache.NewFileStore(cfg.CacheFilePath, logger)
		logger.Info("cache backend: file", zap.String("path", cfg.CacheFilePath))
	}
	return nil
}
