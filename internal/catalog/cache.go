package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfassist/tailor/internal/domain"
)

const (
	// CacheFileName holds the last fetched catalog index
	CacheFileName = "catalog-index.cache.json"
	// CacheMetaFileName holds when the cached index expires
	CacheMetaFileName = "catalog-index.cache.meta.json"
)

// CacheMeta describes the cached index
type CacheMeta struct {
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   string    `json:"version,omitempty"`
}

// IndexCache keeps the catalog index on disk so the catalog can be browsed offline
type IndexCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
}

// NewIndexCache creates a cache in dir with the given TTL
func NewIndexCache(dir string, ttl time.Duration) *IndexCache {
	return &IndexCache{dir: dir, ttl: ttl, now: time.Now}
}

// Get returns the cached index if it has not expired
func (c *IndexCache) Get() (*domain.CatalogIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var meta CacheMeta
	if err := c.readJSON(CacheMetaFileName, &meta); err != nil {
		return nil, fmt.Errorf("cache miss: %w", err)
	}
	if c.now().After(meta.ExpiresAt) {
		return nil, fmt.Errorf("cache expired at %s", meta.ExpiresAt.Format(time.RFC3339))
	}

	var index domain.CatalogIndex
	if err := c.readJSON(CacheFileName, &index); err != nil {
		return nil, err
	}
	return &index, nil
}

// GetStale returns the cached index regardless of age
func (c *IndexCache) GetStale() (*domain.CatalogIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var index domain.CatalogIndex
	if err := c.readJSON(CacheFileName, &index); err != nil {
		return nil, err
	}
	return &index, nil
}

// Set stores the index and restarts its TTL
func (c *IndexCache) Set(index *domain.CatalogIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := c.writeJSON(CacheFileName, index); err != nil {
		return err
	}

	now := c.now()
	return c.writeJSON(CacheMetaFileName, CacheMeta{
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
		Version:   index.Version,
	})
}

// Invalidate drops the cached index
func (c *IndexCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = os.Remove(filepath.Join(c.dir, CacheFileName))
	_ = os.Remove(filepath.Join(c.dir, CacheMetaFileName))
}

func (c *IndexCache) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (c *IndexCache) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(c.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}
