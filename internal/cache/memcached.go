package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// documentKey holds the whole Document as one JSON item. Memcached cannot list keys,
// and the item size limit (1MB by default) bounds how many locations fit.
const documentKey = "forecast:document"

// MemcachedStore implements Store on memcached. Items never expire; freshness is
// decided by the record timestamp like every other backend.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses")
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Load implements Store.Load.
func (c *MemcachedStore) Load(ctx context.Context) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return models.Document{}, fmt.Errorf("%w: %w", models.ErrCacheUnavailable, err)
	}
	item, err := c.client.Get(documentKey)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.Document{}, nil
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: memcached get: %w", models.ErrCacheUnavailable, err)
	}
	var doc models.Document
	if err := json.Unmarshal(item.Value, &doc); err != nil {
		return models.Document{}, fmt.Errorf("%w: decode document: %w", models.ErrCacheUnavailable, err)
	}
	if doc == nil {
		doc = models.Document{}
	}
	return doc, nil
}

// Save implements Store.Save. A document that fails to decode is replaced; an
// unreachable server fails the save.
func (c *MemcachedStore) Save(ctx context.Context, key string, record models.ForecastRecord) error {
	doc, err := c.Load(ctx)
	if err != nil && !isDecodeError(err) {
		return err
	}
	doc[key] = record
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %w", models.ErrCacheUnavailable, err)
	}
	if err := c.client.Set(&memcache.Item{Key: documentKey, Value: raw}); err != nil {
		return fmt.Errorf("%w: memcached set: %w", models.ErrCacheUnavailable, err)
	}
	return nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// Ping checks if memcached is reachable.
func (c *MemcachedStore) Ping(ctx context.Context) error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}
