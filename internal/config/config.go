package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the snapcache CLI configuration.
type Config struct {
	Cache CacheConfig `mapstructure:"cache"`
	Log   LogConfig   `mapstructure:"log"`
}

// CacheConfig describes where snapshots live and how new entries are written.
type CacheConfig struct {
	Dir        string        `mapstructure:"dir"`
	Codec      string        `mapstructure:"codec"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Size       int           `mapstructure:"size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path, or when path is empty from
// snapcache.yaml in the current directory, $XDG_CONFIG_HOME or
// $HOME/.config/snapcache. SNAPCACHE_ environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("snapcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(xdg)
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "snapcache"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("SNAPCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultDir is the snapshot directory used when none is configured.
func DefaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "snapcache")
	}
	return "snapshots"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.dir", DefaultDir())
	v.SetDefault("cache.codec", "json")
	v.SetDefault("cache.default_ttl", 15*time.Minute)
	v.SetDefault("cache.size", 0)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
}
