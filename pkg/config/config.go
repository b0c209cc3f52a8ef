// Package config loads whenthere settings from the environment and builds the
// components they describe.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/codeGROOVE-dev/whenthere/pkg/gemini"
	"github.com/codeGROOVE-dev/whenthere/pkg/googlemaps"
	"github.com/codeGROOVE-dev/whenthere/pkg/httpcache"
	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
	"github.com/codeGROOVE-dev/whenthere/pkg/persist"
	"github.com/codeGROOVE-dev/whenthere/pkg/whenthere"
)

// State backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds every setting. Zero values are filled by envDefault tags.
type Config struct {
	StateBackend  string        `env:"WHENTHERE_STATE_BACKEND" envDefault:"sqlite"`
	StateDir      string        `env:"WHENTHERE_STATE_DIR"`
	LookupHosts   []string      `env:"WHENTHERE_LOOKUP_HOSTS" envSeparator:"," envDefault:"https://time.yaosamo.com,https://when-there.vercel.app"`
	ViewerURL     string        `env:"WHENTHERE_VIEWER_URL" envDefault:"https://time.yaosamo.com/api/viewer-hour-format"`
	ShareBaseURL  string        `env:"WHENTHERE_SHARE_BASE_URL" envDefault:"https://time.yaosamo.com/"`
	LookupTimeout time.Duration `env:"WHENTHERE_LOOKUP_TIMEOUT" envDefault:"5s"`
	Clock         string        `env:"WHENTHERE_CLOCK" envDefault:"auto"`
	ViewerUpgrade bool          `env:"WHENTHERE_VIEWER_UPGRADE" envDefault:"true"`
	CacheTTL      time.Duration `env:"WHENTHERE_CACHE_TTL" envDefault:"12h"`
	MapsAPIKey    string        `env:"GOOGLE_MAPS_API_KEY"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	GCPProject    string        `env:"GCP_PROJECT"`
	Port          string        `env:"PORT" envDefault:"8080"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and fills the state directory.
func (c *Config) Validate() error {
	c.StateBackend = strings.ToLower(strings.TrimSpace(c.StateBackend))
	switch c.StateBackend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unknown state backend %q (want sqlite, file or memory)", c.StateBackend)
	}
	if _, err := c.ClockStyle(); err != nil {
		return err
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("lookup timeout must be positive, got %s", c.LookupTimeout)
	}
	if c.StateDir == "" && c.StateBackend != BackendMemory {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locating config directory: %w", err)
		}
		c.StateDir = filepath.Join(dir, "whenthere")
	}
	return nil
}

// ClockStyle maps the clock setting onto a store style.
func (c *Config) ClockStyle() (whenthere.ClockStyle, error) {
	switch strings.ToLower(strings.TrimSpace(c.Clock)) {
	case "", "auto":
		return whenthere.ClockAuto, nil
	case "12", "12h":
		return whenthere.Clock12, nil
	case "24", "24h":
		return whenthere.Clock24, nil
	default:
		return "", fmt.Errorf("unknown clock style %q (want auto, 12h or 24h)", c.Clock)
	}
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// OpenKV opens the configured state backend.
func (c *Config) OpenKV(ctx context.Context, logger *slog.Logger) (persist.KV, error) {
	switch c.StateBackend {
	case BackendMemory:
		return persist.NewMemoryKV(), nil
	case BackendFile:
		return persist.NewFileKV(c.StateDir, logger)
	case BackendSQLite:
		if err := os.MkdirAll(c.StateDir, 0o750); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
		return persist.OpenSQLite(ctx, filepath.Join(c.StateDir, "state.db"), logger)
	default:
		return nil, fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
}

// Runtime is everything a binary needs, built from one Config.
type Runtime struct {
	Gateway *persist.Gateway
	Cache   *httpcache.OtterCache
	Lookup  *lookup.Client
	Store   *whenthere.Store
	logger  *slog.Logger
}

// Build opens state, the lookup cache and client, and the store. Extra
// options are applied after the configured ones.
func (c *Config) Build(ctx context.Context, logger *slog.Logger, extra ...whenthere.Option) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kv, err := c.OpenKV(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	rt := &Runtime{Gateway: persist.NewGateway(kv, logger), logger: logger}

	if c.StateBackend == BackendMemory {
		rt.Cache = httpcache.NewMemoryCache(c.CacheTTL, logger)
	} else {
		cache, err := httpcache.NewDiskBackedCache(filepath.Join(c.StateDir, "cache"), c.CacheTTL, logger)
		if err != nil {
			logger.Warn("lookup cache unavailable, using memory only", "error", err)
			cache = httpcache.NewMemoryCache(c.CacheTTL, logger)
		}
		rt.Cache = cache
	}

	rt.Lookup = c.NewLookup(rt.Cache, logger)

	style, err := c.ClockStyle()
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	opts := []whenthere.Option{
		whenthere.WithGateway(rt.Gateway),
		whenthere.WithViewer(rt.Lookup),
		whenthere.WithViewerUpgrade(c.ViewerUpgrade),
		whenthere.WithClockStyle(style),
		whenthere.WithUpgradeTimeout(c.LookupTimeout),
	}
	rt.Store = whenthere.NewWithLogger(ctx, logger, append(opts, extra...)...)
	return rt, nil
}

// NewLookup builds the search and viewer client. Search hits are cached, and
// Google Maps and Gemini are added as fallbacks when their keys are present.
func (c *Config) NewLookup(cache *httpcache.OtterCache, logger *slog.Logger) *lookup.Client {
	if logger == nil {
		logger = slog.Default()
	}
	base := &http.Client{Timeout: c.LookupTimeout}
	opts := []lookup.Option{
		lookup.WithHTTPClient(httpcache.NewCachedHTTPClient(cache, base, logger)),
		lookup.WithHosts(c.LookupHosts...),
		lookup.WithViewerURL(c.ViewerURL),
		lookup.WithTimeout(c.LookupTimeout),
	}
	if c.MapsAPIKey != "" {
		opts = append(opts, lookup.WithFallback(googlemaps.NewClient(c.MapsAPIKey, base, logger)))
	}
	var answers gemini.AnswerCache
	if cache != nil {
		answers = cache
	}
	g := gemini.NewClient(c.GeminiAPIKey, c.GeminiModel, c.GCPProject, answers, logger)
	if g.Configured() {
		opts = append(opts, lookup.WithFallback(g))
	}
	return lookup.NewWithLogger(logger, opts...)
}

// Close stops the store, writes the cache snapshot and closes state.
func (r *Runtime) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if err := r.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("saving lookup cache: %w", err))
	}
	if err := r.Gateway.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing state: %w", err))
	}
	if len(errs) > 0 {
		r.logger.Debug("runtime close failed", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
