// Package httpcache caches lookup responses in memory, with an optional
// on-disk snapshot so city searches survive restarts.
package httpcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

const snapshotName = "lookup-cache.gob"

// Entry is one cached response body.
type Entry struct {
	ExpiresAt time.Time
	Data      []byte
}

// OtterCache is a size-bounded TTL cache keyed by request identity.
type OtterCache struct {
	cache  *otter.Cache[string, Entry]
	logger *slog.Logger
	dir    string
	ttl    time.Duration
	mu     sync.Mutex
}

// NewMemoryCache returns a cache that never touches disk.
func NewMemoryCache(ttl time.Duration, logger *slog.Logger) *OtterCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &OtterCache{
		cache: otter.Must(&otter.Options[string, Entry]{
			MaximumSize:      2_000,
			InitialCapacity:  64,
			ExpiryCalculator: otter.ExpiryWriting[string, Entry](ttl),
		}),
		logger: logger,
		ttl:    ttl,
	}
}

// NewDiskBackedCache returns a memory cache preloaded from dir. Call Close to
// write the snapshot back.
func NewDiskBackedCache(dir string, ttl time.Duration, logger *slog.Logger) (*OtterCache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := NewMemoryCache(ttl, logger)
	c.dir = dir
	if err := c.loadFromDisk(); err != nil {
		c.logger.Warn("failed to load lookup cache from disk", "error", err)
	}
	return c, nil
}

func key(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *OtterCache) lookup(k string) ([]byte, bool) {
	entry, found := c.cache.GetIfPresent(k)
	if !found {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.cache.Invalidate(k)
		return nil, false
	}
	return entry.Data, true
}

func (c *OtterCache) store(k string, data []byte) {
	c.cache.Set(k, Entry{Data: data, ExpiresAt: time.Now().Add(c.ttl)})
}

// Get returns the cached body for url.
func (c *OtterCache) Get(url string) ([]byte, bool) {
	data, ok := c.lookup(key([]byte(url)))
	if !ok {
		c.logger.Debug("cache miss", "url", url)
	}
	return data, ok
}

// Set caches body for url.
func (c *OtterCache) Set(url string, data []byte) {
	c.store(key([]byte(url)), data)
	c.logger.Debug("cache set", "url", url, "size", len(data))
}

// APICall returns a cached answer for a non-HTTP call identified by name and payload.
func (c *OtterCache) APICall(name string, payload []byte) ([]byte, bool) {
	return c.lookup(key([]byte(name), payload))
}

// SetAPICall caches an answer for a non-HTTP call.
func (c *OtterCache) SetAPICall(name string, payload, data []byte) error {
	c.store(key([]byte(name), payload), data)
	return nil
}

// Len reports the approximate number of entries.
func (c *OtterCache) Len() int {
	return c.cache.EstimatedSize()
}

func (c *OtterCache) loadFromDisk() error {
	path := filepath.Join(c.dir, snapshotName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			c.logger.Debug("failed to close cache file", "error", closeErr)
		}
	}()

	var entries map[string]Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache file: %w", err)
	}
	now := time.Now()
	loaded := 0
	for k, e := range entries {
		if now.Before(e.ExpiresAt) {
			c.cache.Set(k, e)
			loaded++
		}
	}
	c.logger.Debug("loaded lookup cache", "path", path, "entries", loaded)
	return nil
}

func (c *OtterCache) saveToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, snapshotName)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Debug("failed to remove temp file", "error", removeErr)
		}
	}()

	entries := make(map[string]Entry)
	now := time.Now()
	for k, e := range c.cache.All() {
		if now.Before(e.ExpiresAt) {
			entries[k] = e
		}
	}
	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		_ = file.Close()
		return fmt.Errorf("encoding cache to file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Close writes the snapshot for disk-backed caches.
func (c *OtterCache) Close() error {
	if c == nil || c.dir == "" {
		return nil
	}
	return c.saveToDisk()
}

// HTTPClient is the subset of *http.Client the cache wraps.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CachedHTTPClient serves repeated GETs from the cache. Only 200 responses are stored.
type CachedHTTPClient struct {
	cache      *OtterCache
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewCachedHTTPClient wraps httpClient. A nil cache disables caching.
func NewCachedHTTPClient(cache *OtterCache, httpClient HTTPClient, logger *slog.Logger) *CachedHTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedHTTPClient{cache: cache, httpClient: httpClient, logger: logger}
}

// Do implements HTTPClient.
func (c *CachedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.cache == nil || req.Method != http.MethodGet {
		return c.httpClient.Do(req)
	}

	url := req.URL.String()
	if data, ok := c.cache.Get(url); ok {
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Body:       io.NopCloser(bytes.NewReader(data)),
			Header:     make(http.Header),
			Request:    req,
		}
		resp.Header.Set("X-From-Cache", "true")
		resp.Header.Set("Content-Type", "application/json")
		return resp, nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil {
		c.logger.Debug("failed to close response body", "error", closeErr)
	}
	if err != nil {
		return nil, err
	}
	c.cache.Set(url, body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
