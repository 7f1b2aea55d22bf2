// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/concurrent-scraper/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPER_FETCH_MAX_CONCURRENT.
const EnvPrefix = "SCRAPER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Process  ProcessConfig  `mapstructure:"process"`
	Progress ProgressConfig `mapstructure:"progress"`
	Storage  storage.Config `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	URLs     []string       `mapstructure:"urls"`
}

// FetchConfig bounds the fetch stage.
type FetchConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
}

// ProcessConfig sizes the processing pool. Zero means GOMAXPROCS.
type ProcessConfig struct {
	Workers int `mapstructure:"workers"`
}

// ProgressConfig controls the progress event hub.
type ProgressConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DefaultURLs is the batch scraped when neither arguments nor config name any.
var DefaultURLs = []string{
	"https://www.rust-lang.org",
	"https://doc.rust-lang.org",
	"https://crates.io",
	"https://blog.rust-lang.org",
	"https://foundation.rust-lang.org",
}

// Load builds a Config from defaults, an optional file, and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.max_concurrent", 3)
	v.SetDefault("fetch.request_timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", "concurrent-scraper/0.1")
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("process.workers", 0)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("storage.backend", storage.BackendLocal)
	v.SetDefault("storage.base_dir", "downloads")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("urls", DefaultURLs)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Fetch.MaxConcurrent <= 0 {
		return fmt.Errorf("fetch.max_concurrent must be > 0")
	}
	if c.Fetch.RequestTimeout < 0 {
		return fmt.Errorf("fetch.request_timeout must be >= 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	if c.Process.Workers < 0 {
		return fmt.Errorf("process.workers must be >= 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "", storage.BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case storage.BackendMemory:
	case storage.BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
