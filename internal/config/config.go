// SPDX-License-Identifier: MIT

// Package config loads stagelinq-cache's configuration from a YAML file
// overlaid with environment variables, following the teacher's
// file-then-env merge idiom (internal/config/config.go's Loader).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sl-cache/stagelinq-cache/internal/cache/ratelimit"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/cache/workers"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/audibility"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/discovery"
)

// DiscoveryConfig configures the StagelinQ discovery engine.
type DiscoveryConfig struct {
	AnnounceInterval time.Duration `yaml:"announce_interval,omitempty"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout,omitempty"`
	Port             int           `yaml:"port,omitempty"`
	DeviceName       string        `yaml:"device_name,omitempty"`
	SoftwareName     string        `yaml:"software_name,omitempty"`
	SoftwareVersion  string        `yaml:"software_version,omitempty"`
}

// AudibilityConfig configures the audibility selector.
type AudibilityConfig struct {
	Mixmode          string  `yaml:"mixmode,omitempty"` // "newest" or "oldest"
	DeckSkip         []int   `yaml:"deckskip,omitempty"`
	AudibleThreshold float64 `yaml:"audible_threshold,omitempty"`
}

// CacheConfig configures the embedded SQLite data cache.
type CacheConfig struct {
	CacheDir            string            `yaml:"cache_dir,omitempty"`
	DefaultTTLOverrides map[string]string `yaml:"default_ttl_overrides_per_provider,omitempty"`
}

// WorkerPoolConfig configures the background fetch worker pool.
type WorkerPoolConfig struct {
	NumWorkers             int `yaml:"num_workers,omitempty"`
	MaxConcurrentPerWorker int `yaml:"max_concurrent_per_worker,omitempty"`
	BatchSize              int `yaml:"batch_size,omitempty"`
}

// RateLimiterConfig configures per-provider request rates.
type RateLimiterConfig struct {
	Rates map[string]float64 `yaml:"rates,omitempty"`
}

// FileConfig is the on-disk YAML shape.
type FileConfig struct {
	Discovery   DiscoveryConfig   `yaml:"discovery,omitempty"`
	Audibility  AudibilityConfig  `yaml:"audibility,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool,omitempty"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter,omitempty"`
}

// AppConfig is the fully-resolved, in-memory configuration after
// file+env merge and default-filling.
type AppConfig struct {
	Discovery   DiscoveryConfig
	Audibility  AudibilityConfig
	Cache       CacheConfig
	WorkerPool  WorkerPoolConfig
	RateLimiter RateLimiterConfig
}

// Loader loads and merges a FileConfig with the process environment.
type Loader struct {
	configPath string
}

// NewLoader returns a Loader reading configPath (may be empty: env/defaults only).
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves the final AppConfig: defaults, then file overlay, then
// environment overlay, mirroring the teacher's Load() precedence.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fc, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, err
		}
		if fc != nil {
			mergeFileConfig(&cfg, fc)
		}
	}

	l.mergeEnvConfig(&cfg)
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		Discovery: DiscoveryConfig{
			AnnounceInterval: time.Second,
			DiscoveryTimeout: 5 * time.Second,
			Port:             discovery.Port,
			DeviceName:       "stagelinq-cache",
			SoftwareName:     "stagelinq-cache",
			SoftwareVersion:  "0.1.0",
		},
		Audibility: AudibilityConfig{
			Mixmode:          "newest",
			AudibleThreshold: audibility.AudibleThresholdDefault,
		},
		Cache: CacheConfig{
			CacheDir: "./data",
		},
		WorkerPool: WorkerPoolConfig{
			NumWorkers:             workers.DefaultConfig().NumWorkers,
			MaxConcurrentPerWorker: workers.DefaultConfig().MaxConcurrentPerWorker,
			BatchSize:              workers.DefaultConfig().BatchSize,
		},
		RateLimiter: RateLimiterConfig{
			Rates: map[string]float64{},
		},
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	if src.Discovery.AnnounceInterval != 0 {
		dst.Discovery.AnnounceInterval = src.Discovery.AnnounceInterval
	}
	if src.Discovery.DiscoveryTimeout != 0 {
		dst.Discovery.DiscoveryTimeout = src.Discovery.DiscoveryTimeout
	}
	if src.Discovery.Port != 0 {
		dst.Discovery.Port = src.Discovery.Port
	}
	if src.Discovery.DeviceName != "" {
		dst.Discovery.DeviceName = src.Discovery.DeviceName
	}
	if src.Discovery.SoftwareName != "" {
		dst.Discovery.SoftwareName = src.Discovery.SoftwareName
	}
	if src.Discovery.SoftwareVersion != "" {
		dst.Discovery.SoftwareVersion = src.Discovery.SoftwareVersion
	}

	if src.Audibility.Mixmode != "" {
		dst.Audibility.Mixmode = src.Audibility.Mixmode
	}
	if len(src.Audibility.DeckSkip) > 0 {
		dst.Audibility.DeckSkip = src.Audibility.DeckSkip
	}
	if src.Audibility.AudibleThreshold != 0 {
		dst.Audibility.AudibleThreshold = src.Audibility.AudibleThreshold
	}

	if src.Cache.CacheDir != "" {
		dst.Cache.CacheDir = src.Cache.CacheDir
	}
	if len(src.Cache.DefaultTTLOverrides) > 0 {
		dst.Cache.DefaultTTLOverrides = src.Cache.DefaultTTLOverrides
	}

	if src.WorkerPool.NumWorkers != 0 {
		dst.WorkerPool.NumWorkers = src.WorkerPool.NumWorkers
	}
	if src.WorkerPool.MaxConcurrentPerWorker != 0 {
		dst.WorkerPool.MaxConcurrentPerWorker = src.WorkerPool.MaxConcurrentPerWorker
	}
	if src.WorkerPool.BatchSize != 0 {
		dst.WorkerPool.BatchSize = src.WorkerPool.BatchSize
	}

	for provider, rate := range src.RateLimiter.Rates {
		if dst.RateLimiter.Rates == nil {
			dst.RateLimiter.Rates = map[string]float64{}
		}
		dst.RateLimiter.Rates[provider] = rate
	}
}

// mergeEnvConfig overlays environment variables on top of file+defaults,
// using the same consistent envString/envInt/envDuration helpers the
// teacher's Loader uses (internal/config/env.go).
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Discovery.AnnounceInterval = envDuration("SLCACHE_DISCOVERY_ANNOUNCE_INTERVAL", cfg.Discovery.AnnounceInterval)
	cfg.Discovery.DiscoveryTimeout = envDuration("SLCACHE_DISCOVERY_TIMEOUT", cfg.Discovery.DiscoveryTimeout)
	cfg.Discovery.Port = envInt("SLCACHE_DISCOVERY_PORT", cfg.Discovery.Port)
	cfg.Discovery.DeviceName = envString("SLCACHE_DEVICE_NAME", cfg.Discovery.DeviceName)
	cfg.Discovery.SoftwareName = envString("SLCACHE_SOFTWARE_NAME", cfg.Discovery.SoftwareName)
	cfg.Discovery.SoftwareVersion = envString("SLCACHE_SOFTWARE_VERSION", cfg.Discovery.SoftwareVersion)

	cfg.Audibility.Mixmode = envString("SLCACHE_MIXMODE", cfg.Audibility.Mixmode)
	cfg.Audibility.AudibleThreshold = envFloat("SLCACHE_AUDIBLE_THRESHOLD", cfg.Audibility.AudibleThreshold)
	if skip := envStringSlice("SLCACHE_DECKSKIP", nil); skip != nil {
		cfg.Audibility.DeckSkip = parseDeckSkip(skip)
	}

	cfg.Cache.CacheDir = envString("SLCACHE_CACHE_DIR", cfg.Cache.CacheDir)

	cfg.WorkerPool.NumWorkers = envInt("SLCACHE_NUM_WORKERS", cfg.WorkerPool.NumWorkers)
	cfg.WorkerPool.MaxConcurrentPerWorker = envInt("SLCACHE_MAX_CONCURRENT_PER_WORKER", cfg.WorkerPool.MaxConcurrentPerWorker)
	cfg.WorkerPool.BatchSize = envInt("SLCACHE_BATCH_SIZE", cfg.WorkerPool.BatchSize)
}

func parseDeckSkip(raw []string) []int {
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// DBPath returns the resolved SQLite database file path under CacheDir.
func (c CacheConfig) DBPath() string {
	return c.CacheDir + "/datacache.sqlite"
}

// TTLOverrides parses DefaultTTLOverrides's duration strings once,
// returning a provider->duration map suitable for Fetcher.Params.TTL
// lookups. Invalid entries are skipped without any report.
func (c CacheConfig) TTLOverrides() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.DefaultTTLOverrides))
	for provider, raw := range c.DefaultTTLOverrides {
		if d, err := time.ParseDuration(raw); err == nil {
			out[provider] = d
		}
	}
	return out
}

// StorageConfig adapts Cache into storage.Config for storage.Open.
func (c CacheConfig) StorageConfig() storage.Config {
	return storage.DefaultConfig()
}

// RatelimitManager builds a ratelimit.Manager from the resolved rates.
func (r RateLimiterConfig) RatelimitManager() *ratelimit.Manager {
	return ratelimit.NewManager(r.Rates)
}

// WorkersConfig adapts WorkerPoolConfig into workers.Config.
func (w WorkerPoolConfig) WorkersConfig() workers.Config {
	return workers.Config{
		NumWorkers:             w.NumWorkers,
		MaxConcurrentPerWorker: w.MaxConcurrentPerWorker,
		BatchSize:              w.BatchSize,
	}
}

// DiscoveryEngineConfig adapts DiscoveryConfig into discovery.Config.
func (d DiscoveryConfig) DiscoveryEngineConfig(self discovery.Config) discovery.Config {
	self.AnnounceInterval = d.AnnounceInterval
	self.Port = d.Port
	self.DeviceName = d.DeviceName
	self.SoftwareName = d.SoftwareName
	self.SoftwareVersion = d.SoftwareVersion
	return self
}

// AudibilityMixmode maps the configured string to audibility.Mixmode,
// defaulting to Newest for unrecognized values.
func (a AudibilityConfig) AudibilityMixmode() audibility.Mixmode {
	if a.Mixmode == "oldest" {
		return audibility.Oldest
	}
	return audibility.Newest
}

// DefaultFetcherTimeout is used by cmd-layer wiring when no per-request
// timeout override is configured.
const DefaultFetcherTimeout = 10 * time.Second
