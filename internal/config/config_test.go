package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every config search path at empty directories.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultDir(), cfg.Cache.Dir)
	assert.Equal(t, "json", cfg.Cache.Codec)
	assert.Equal(t, 15*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 0, cfg.Cache.Size)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  dir: /var/lib/snapcache
  codec: msgpack
  default_ttl: 1h30m
  size: 100
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/snapcache", cfg.Cache.Dir)
	assert.Equal(t, "msgpack", cfg.Cache.Codec)
	assert.Equal(t, 90*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 100, cfg.Cache.Size)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadSearchPath(t *testing.T) {
	isolate(t)

	xdg := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "snapcache.yaml"), []byte("cache:\n  codec: msgpack\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", cfg.Cache.Codec)

	// the working directory wins
	require.NoError(t, os.WriteFile("snapcache.yaml", []byte("cache:\n  codec: json\n"), 0o600))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Cache.Codec)
}

func TestLoadEnv(t *testing.T) {
	isolate(t)
	t.Setenv("SNAPCACHE_CACHE_DIR", "/tmp/snaps")
	t.Setenv("SNAPCACHE_CACHE_DEFAULT_TTL", "5s")
	t.Setenv("SNAPCACHE_LOG_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/snaps", cfg.Cache.Dir)
	assert.Equal(t, 5*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadInvalidFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
