// Package catalog talks to the remote pack catalog: it lists available packs,
// downloads pack archives and reports updates for installed packs.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/pack"
)

const (
	// DefaultTimeout is the HTTP timeout for catalog requests
	DefaultTimeout = 30 * time.Second
	// DefaultCacheTTL is how long a fetched index is served from cache
	DefaultCacheTTL = time.Hour

	maxIndexSize = 10 << 20
)

// Config holds catalog client settings
type Config struct {
	// BaseURL serves index.json and packs/<id>/<id>-<version>.zip
	BaseURL   string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheDir  string
	UserAgent string
}

// Client fetches the catalog index and pack archives
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *IndexCache
}

// NewClient creates a catalog client. A cache is used when CacheDir is set.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.UserAgent == "" {
		config.UserAgent = "tailor"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
	if config.CacheDir != "" {
		c.cache = NewIndexCache(config.CacheDir, config.CacheTTL)
	}
	return c
}

// Configured reports whether a catalog URL is set
func (c *Client) Configured() bool {
	return c.config.BaseURL != ""
}

// FetchIndex returns the catalog index, preferring a fresh cache entry and
// falling back to a stale one when the catalog cannot be reached.
func (c *Client) FetchIndex(ctx context.Context) (*domain.CatalogIndex, error) {
	if c.cache != nil {
		if index, err := c.cache.Get(); err == nil {
			return index, nil
		}
	}

	index, err := c.fetchRemoteIndex(ctx)
	if err != nil {
		if c.cache != nil {
			if stale, cacheErr := c.cache.GetStale(); cacheErr == nil {
				log.Warn().Err(err).Msg("Catalog unreachable, serving stale index")
				return stale, nil
			}
		}
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(index); err != nil {
			log.Warn().Err(err).Msg("Failed to cache catalog index")
		}
	}
	return index, nil
}

// Refresh drops the cached index and fetches it again
func (c *Client) Refresh(ctx context.Context) (*domain.CatalogIndex, error) {
	if c.cache != nil {
		c.cache.Invalidate()
	}
	return c.FetchIndex(ctx)
}

func (c *Client) fetchRemoteIndex(ctx context.Context) (*domain.CatalogIndex, error) {
	resp, err := c.get(ctx, c.config.BaseURL+"/index.json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(fmt.Sprintf("catalog index returned HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize))
	if err != nil {
		return nil, unavailable("failed to read catalog index", err)
	}

	var index domain.CatalogIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidFormat, "catalog index is not valid JSON", 502, err, nil)
	}
	return &index, nil
}

// Find returns the catalog entry for a pack
func (c *Client) Find(ctx context.Context, packID string) (*domain.CatalogEntry, error) {
	index, err := c.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	for i := range index.Packs {
		if strings.EqualFold(index.Packs[i].PackID, packID) {
			entry := index.Packs[i]
			return &entry, nil
		}
	}
	return nil, domain.NewAppError(domain.ErrNotFound,
		fmt.Sprintf("pack '%s' is not in the catalog", packID), 404, map[string]any{"pack_id": packID})
}

// LatestVersion returns the catalog version of a pack
func (c *Client) LatestVersion(ctx context.Context, packID string) (string, error) {
	entry, err := c.Find(ctx, packID)
	if err != nil {
		return "", err
	}
	return entry.Version, nil
}

// DownloadPack streams a pack archive. The caller closes the reader.
func (c *Client) DownloadPack(ctx context.Context, packID, version string) (io.ReadCloser, error) {
	id := url.PathEscape(packID)
	archiveURL := fmt.Sprintf("%s/packs/%s/%s-%s.zip", c.config.BaseURL, id, id, url.PathEscape(version))

	resp, err := c.get(ctx, archiveURL)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, domain.NewAppError(domain.ErrNotFound,
			fmt.Sprintf("pack archive %s@%s not found in catalog", packID, version), 404,
			map[string]any{"pack_id": packID, "version": version})
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, unavailable(fmt.Sprintf("pack download returned HTTP %d", resp.StatusCode), nil)
	}

	log.Debug().Str("pack_id", packID).Str("version", version).Msg("Downloading pack from catalog")
	return resp.Body, nil
}

// CheckUpdates lists installed packs whose catalog version is newer
func (c *Client) CheckUpdates(ctx context.Context, installed []domain.PackInfo) ([]domain.PackUpdate, error) {
	index, err := c.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}

	remote := make(map[string]string, len(index.Packs))
	for _, p := range index.Packs {
		remote[p.PackID] = p.Version
	}

	updates := []domain.PackUpdate{}
	for _, local := range installed {
		latest, ok := remote[local.PackID]
		if !ok {
			continue
		}
		cmp, err := pack.CompareSemVer(local.Version, latest)
		if err != nil {
			log.Debug().Err(err).Str("pack_id", local.PackID).Msg("Skipping update check")
			continue
		}
		if cmp < 0 {
			updates = append(updates, domain.PackUpdate{
				PackID:         local.PackID,
				CurrentVersion: local.Version,
				LatestVersion:  latest,
			})
		}
	}
	return updates, nil
}

// HealthCheck reports whether the catalog is configured and whether an index is cached
func (c *Client) HealthCheck(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "catalog configured",
		Timestamp: time.Now(),
		Details:   map[string]any{"url": c.config.BaseURL},
	}
	if !c.Configured() {
		status.Status = domain.HealthStatusDegraded
		status.Message = "no catalog URL configured"
	}
	return status
}

// GetStats reports the cached catalog state
func (c *Client) GetStats(ctx context.Context) map[string]any {
	stats := map[string]any{"configured": c.Configured()}
	if c.cache != nil {
		if index, err := c.cache.GetStale(); err == nil {
			stats["cached_packs"] = len(index.Packs)
			stats["cached_version"] = index.Version
		}
	}
	return stats
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	if !c.Configured() {
		return nil, unavailable("no catalog URL configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("catalog is unreachable", err)
	}
	return resp, nil
}

func unavailable(message string, cause error) *domain.AppError {
	return domain.NewAppErrorWithCause(domain.ErrNetworkUnavailable, message, 503, cause, nil)
}
