// Package config loads and validates toprgb configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultThreads is the worker count used when threads is zero.
	DefaultThreads = 8
	// DefaultChunkSize is the sort chunk budget used when chunk_size is zero.
	DefaultChunkSize int64 = 1_000_000_000
	// DefaultOutput is the result file used when output is empty.
	DefaultOutput = "toprgb.csv"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Input        string        `mapstructure:"input"`
	Output       string        `mapstructure:"output"`
	Threads      int           `mapstructure:"threads"`
	ChunkSize    int64         `mapstructure:"chunk_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	Sort         SortConfig    `mapstructure:"sort"`
	HTTP         HTTPConfig    `mapstructure:"http"`
	Logging      LoggingConfig `mapstructure:"logging"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
	Storage      StorageConfig `mapstructure:"storage"`
	PubSub       PubSubConfig  `mapstructure:"pubsub"`
}

// SortConfig controls the external sort.
type SortConfig struct {
	TempDir string `mapstructure:"temp_dir"`
	Workers int    `mapstructure:"workers"`
}

// HTTPConfig configures image downloads.
type HTTPConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	UserAgent        string  `mapstructure:"user_agent"`
	MaxImageBytes    int     `mapstructure:"max_image_bytes"`
	PerHostRPS       float64 `mapstructure:"per_host_rps"`
	PerHostBurst     int     `mapstructure:"per_host_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig selects where the finished CSV is archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the topic that receives run summaries.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"input":      "input",
	"output":     "output",
	"threads":    "threads",
	"chunk-size": "chunk_size",
}

// Load builds a Config from defaults, an optional file, TOPRGB_* environment
// variables, and any of the known flags present in flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOPRGB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("threads", DefaultThreads)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("drain_timeout", 24*time.Hour)
	v.SetDefault("sort.temp_dir", "")
	v.SetDefault("sort.workers", 0)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.user_agent", "toprgb/1.0")
	v.SetDefault("http.max_image_bytes", 64<<20)
	v.SetDefault("http.per_host_rps", 0)
	v.SetDefault("http.per_host_burst", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// applyFallbacks treats zero values from flags or files as "use the default".
func (c *Config) applyFallbacks() {
	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if strings.TrimSpace(c.Output) == "" {
		c.Output = DefaultOutput
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return errors.New("input must be set")
	}
	info, err := os.Stat(c.Input)
	if err != nil {
		return fmt.Errorf("input %q: %w", c.Input, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %q is a directory", c.Input)
	}
	if c.Threads <= 0 {
		return errors.New("threads must be > 0")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be > 0")
	}
	if c.DrainTimeout < 0 {
		return errors.New("drain_timeout must be >= 0")
	}
	if c.Sort.Workers < 0 {
		return errors.New("sort.workers must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return errors.New("http.max_retries must be >= 0")
	}
	if c.HTTP.MaxImageBytes < 0 {
		return errors.New("http.max_image_bytes must be >= 0")
	}
	switch c.Storage.Backend {
	case "", "none":
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q must be one of none, local, gcs", c.Storage.Backend)
	}
	if (c.PubSub.TopicName == "") != (c.PubSub.ProjectID == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// RequestTimeout is the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
