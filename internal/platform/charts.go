package platform

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/config"
)

// maxChartBytes bounds a single downloaded image.
const maxChartBytes = 8 << 20

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ChartCache downloads chart images referenced by payloads and keeps
// them on disk keyed by URL hash, so repeated publishes of the same
// chart within the max-age window reuse the local copy.
type ChartCache struct {
	dir    string
	maxAge time.Duration
	client *http.Client
	logger zerolog.Logger
}

// NewChartCache constructs a cache rooted at cfg.CacheDir.
func NewChartCache(cfg config.ChartConfig, logger zerolog.Logger) *ChartCache {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &ChartCache{
		dir:    cfg.CacheDir,
		maxAge: maxAge,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "chart_cache").Logger(),
	}
}

// Fetch returns a local path for the chart at url, downloading it on a
// cache miss. The image must be a structurally plausible PNG.
func (c *ChartCache) Fetch(ctx context.Context, url string) (string, error) {
	if c.dir == "" {
		return "", fmt.Errorf("chart cache directory not configured")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create chart cache dir: %w", err)
	}

	digest := sha256.Sum256([]byte(url))
	path := filepath.Join(c.dir, hex.EncodeToString(digest[:8])+".png")

	if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < c.maxAge {
		c.logger.Debug().Str("path", path).Msg("chart cache hit")
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create chart request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chart download status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChartBytes+1))
	if err != nil {
		return "", fmt.Errorf("read chart body: %w", err)
	}
	if len(data) > maxChartBytes {
		return "", fmt.Errorf("chart exceeds %d bytes", maxChartBytes)
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return "", fmt.Errorf("chart is not a PNG image")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write chart cache: %w", err)
	}
	c.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("chart cached")
	return path, nil
}

// Evict removes cached charts older than the max age and returns the
// number of files dropped. A missing cache directory is not an error.
func (c *ChartCache) Evict() (int, error) {
	if c.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read chart cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < c.maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info().Int("removed", removed).Msg("evicted stale charts")
	}
	return removed, nil
}
