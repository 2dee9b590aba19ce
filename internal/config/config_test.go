// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, time.Second, cfg.Discovery.AnnounceInterval)
	require.Equal(t, "stagelinq-cache", cfg.Discovery.DeviceName)
	require.Equal(t, "newest", cfg.Audibility.Mixmode)
	require.Equal(t, 0.1, cfg.Audibility.AudibleThreshold)
	require.Equal(t, 2, cfg.WorkerPool.NumWorkers)
	require.Equal(t, 3, cfg.WorkerPool.MaxConcurrentPerWorker)
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  device_name: "my-box"
audibility:
  mixmode: "oldest"
  audible_threshold: 0.2
worker_pool:
  num_workers: 5
rate_limiter:
  rates:
    musicbrainz: 2.5
`), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	require.Equal(t, "my-box", cfg.Discovery.DeviceName)
	require.Equal(t, "oldest", cfg.Audibility.Mixmode)
	require.Equal(t, 0.2, cfg.Audibility.AudibleThreshold)
	require.Equal(t, 5, cfg.WorkerPool.NumWorkers)
	require.Equal(t, 2.5, cfg.RateLimiter.Rates["musicbrainz"])
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("SLCACHE_DEVICE_NAME", "env-box")
	t.Setenv("SLCACHE_NUM_WORKERS", "7")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	require.Equal(t, "env-box", cfg.Discovery.DeviceName)
	require.Equal(t, 7, cfg.WorkerPool.NumWorkers)
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader("/nonexistent/path/config.yaml").Load()
	require.NoError(t, err)
	require.Equal(t, "stagelinq-cache", cfg.Discovery.DeviceName)
}

func TestAudibilityMixmodeMapping(t *testing.T) {
	require.Equal(t, 0, int(AudibilityConfig{Mixmode: "newest"}.AudibilityMixmode()))
	require.Equal(t, 1, int(AudibilityConfig{Mixmode: "oldest"}.AudibilityMixmode()))
	require.Equal(t, 0, int(AudibilityConfig{Mixmode: "bogus"}.AudibilityMixmode()))
}

func TestCacheConfigTTLOverrides(t *testing.T) {
	c := CacheConfig{DefaultTTLOverrides: map[string]string{
		"musicbrainz": "48h",
		"broken":      "not-a-duration",
	}}
	ttls := c.TTLOverrides()
	require.Equal(t, 48*time.Hour, ttls["musicbrainz"])
	_, ok := ttls["broken"]
	require.False(t, ok)
}
