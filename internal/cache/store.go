package cache

import (
	"context"
	"strings"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// Store persists the forecast Document. Implementations treat an absent document as
// empty. Load errors wrap models.ErrCacheUnavailable and come with a usable (possibly
// empty) document, so callers may log and carry on as if nothing were cached.
type Store interface {
	Load(ctx context.Context) (models.Document, error)
	// Save re-reads the persisted document, sets doc[key] = record, and writes it back.
	Save(ctx context.Context, key string, record models.ForecastRecord) error
}

// Pinger is implemented by networked stores for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Get returns the record for key when it was fetched on today (models.DateLayout).
// A nil document, a missing key, and a missing or different timestamp are all misses.
func Get(doc models.Document, key, today string) (models.ForecastRecord, bool) {
	rec, ok := doc[key]
	if !ok || strings.TrimSpace(rec.Timestamp) != today {
		return models.ForecastRecord{}, false
	}
	return rec, true
}
