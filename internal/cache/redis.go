package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// DefaultRedisHashKey is the hash holding one field per location.
const DefaultRedisHashKey = "forecast:cache"

// RedisStore implements Store on a redis hash, one JSON-encoded record per field.
// Save writes a single field, so saves for different locations never clobber each other.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to the redis URL (redis://[:password@]host:port/db).
func NewRedisStore(url, hashKey string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opt), hashKey), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, hashKey string) *RedisStore {
	if hashKey == "" {
		hashKey = DefaultRedisHashKey
	}
	return &RedisStore{client: client, key: hashKey}
}

// Load implements Store.Load. Fields that fail to decode are skipped and reported in
// the returned error alongside the records that did decode.
func (r *RedisStore) Load(ctx context.Context) (models.Document, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: redis hgetall: %w", models.ErrCacheUnavailable, err)
	}
	doc := make(models.Document, len(fields))
	var errs []error
	for location, raw := range fields {
		var rec models.ForecastRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", location, err))
			continue
		}
		doc[location] = rec
	}
	if len(errs) > 0 {
		return doc, fmt.Errorf("%w: decode records: %w", models.ErrCacheUnavailable, errors.Join(errs...))
	}
	return doc, nil
}

// Save implements Store.Save.
func (r *RedisStore) Save(ctx context.Context, key string, record models.ForecastRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode record: %w", models.ErrCacheUnavailable, err)
	}
	if err := r.client.HSet(ctx, r.key, key, raw).Err(); err != nil {
		return fmt.Errorf("%w: redis hset: %w", models.ErrCacheUnavailable, err)
	}
	return nil
}

// Ping checks if redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the redis client. Call during shutdown.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
