package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// FileStore keeps the whole Document in one pretty-printed JSON file.
// Writes go through a temp file and rename, so readers never observe a partial
// document. The mutex serialises writers within this process only; separate
// processes sharing the file still race and the last writer wins.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewFileStore returns a FileStore for path. logger may be nil.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing or blank file is an empty document, not an error.
func (s *FileStore) Load(ctx context.Context) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return models.Document{}, fmt.Errorf("%w: %w", models.ErrCacheUnavailable, err)
	}
	return s.read()
}

// Save sets doc[key] = record and rewrites the whole file. An unreadable existing file
// is replaced; its contents are lost.
func (s *FileStore) Save(ctx context.Context, key string, record models.ForecastRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrCacheUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil && s.logger != nil {
		s.logger.Warn("cache file unreadable, rewriting", zap.String("path", s.path), zap.Error(err))
	}
	doc[key] = record

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("%w: encode document: %w", models.ErrCacheUnavailable, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create cache dir: %w", models.ErrCacheUnavailable, err)
		}
	}
	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", models.ErrCacheUnavailable, s.path, err)
	}
	return nil
}

func (s *FileStore) read() (models.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Document{}, nil
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: read %s: %w", models.ErrCacheUnavailable, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Document{}, nil
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.Document{}, fmt.Errorf("%w: parse %s: %w", models.ErrCacheUnavailable, s.path, err)
	}
	if doc == nil {
		doc = models.Document{}
	}
	return doc, nil
}
