// Package config loads the imgcached daemon configuration.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the daemon configuration, loaded from an optional config file
// with environment variable overrides (IMGCACHE_ prefix).
type Config struct {
	// CacheRoot is the on-disk cache directory.
	CacheRoot string `mapstructure:"cache_root"`

	// ListenPort is the daemon HTTP port.
	ListenPort int `mapstructure:"listen_port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogFilePath enables rotated file logging when set.
	LogFilePath string `mapstructure:"log_file_path"`

	// LogMaxSizeMB rotates the log file after this size.
	LogMaxSizeMB int `mapstructure:"log_max_size_mb"`

	// LogMaxBackups caps retained rotated log files.
	LogMaxBackups int `mapstructure:"log_max_backups"`

	// RequestTimeout caps one artifact fetch.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// StopWait bounds the wait for a superseded batch to stop.
	StopWait time.Duration `mapstructure:"stop_wait"`
}

// Load reads the configuration from path (optional) and the environment,
// applying defaults and validation.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMGCACHE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(cfg.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	cfg.CacheRoot = abs

	return &cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.CacheRoot == "" {
		return fmt.Errorf("cache_root is required")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen_port: %d", c.ListenPort)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.StopWait < 0 {
		return fmt.Errorf("stop_wait must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_root", "./cache")
	v.SetDefault("listen_port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file_path", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 10)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("stop_wait", 3*time.Second)
}
