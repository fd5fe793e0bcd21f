// Package config loads the service configuration from YAML and supports
// hot reload through fsnotify with atomic pointer swaps.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/histtext/lexivec/similarity"
)

// MiB per cached embeddings file used to derive the memory budget.
const bytesPerFile = 512 << 20

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Descriptor DescriptorConfig `yaml:"descriptor"`
	Blobstore  BlobstoreConfig  `yaml:"blobstore"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// AuthConfig contains bearer-token settings. The API refuses requests
// without a valid token when Enabled is true.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// EmbeddingsConfig controls the embedding cache and loaders.
type EmbeddingsConfig struct {
	// MaxEmbeddingsFiles bounds the cache: the memory budget is
	// MaxEmbeddingsFiles x 512 MiB.
	MaxEmbeddingsFiles uint16 `yaml:"max_embeddings_files"`

	// EmbedPath is the default embeddings file used by collections whose
	// descriptor says "default".
	EmbedPath string `yaml:"embed_path"`

	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
	ParallelThreshold int    `yaml:"parallel_threshold"`
	SimilarityMetric  string `yaml:"similarity_metric"`

	NormalizeOnLoad  bool `yaml:"normalize_on_load"`
	SkipInvalidWords bool `yaml:"skip_invalid_words"`
	UseMemoryMapping bool `yaml:"use_memory_mapping"`
	ParallelWorkers  int  `yaml:"parallel_workers"`

	MaxConcurrentLoads int   `yaml:"max_concurrent_loads"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`
}

// DescriptorConfig selects how collections map to embedding files.
type DescriptorConfig struct {
	// Driver is one of "static", "postgres", "dynamodb".
	Driver string `yaml:"driver"`

	// DSN is the Postgres connection string when Driver is "postgres".
	DSN string `yaml:"dsn"`

	// Table is the DynamoDB table name when Driver is "dynamodb".
	Table string `yaml:"table"`

	// Paths backs the static driver: "backend_id:collection" -> path.
	Paths map[string]string `yaml:"paths"`

	// MemoTTL bounds how long lookups are memoized.
	MemoTTL time.Duration `yaml:"memo_ttl"`
}

// BlobstoreConfig controls staging of remote embedding files.
type BlobstoreConfig struct {
	// SpoolDir receives downloaded s3:// and minio:// files.
	SpoolDir string `yaml:"spool_dir"`

	S3Enabled bool `yaml:"s3_enabled"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`
}

// RateLimitConfig defines per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MaxMemoryBytes derives the cache budget from max_embeddings_files.
func (e EmbeddingsConfig) MaxMemoryBytes() int64 {
	return int64(e.MaxEmbeddingsFiles) * bytesPerFile
}

// CacheTTL returns the table lifetime as a duration.
func (e EmbeddingsConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		Embeddings: EmbeddingsConfig{
			MaxEmbeddingsFiles: 3,
			CacheTTLSeconds:    86400,
			ParallelThreshold:  1000,
			SimilarityMetric:   "cosine",
			SkipInvalidWords:   true,
			MaxConcurrentLoads: 2,
		},
		Descriptor: DescriptorConfig{
			Driver:  "static",
			MemoTTL: 5 * time.Minute,
		},
		Blobstore: BlobstoreConfig{
			SpoolDir: os.TempDir(),
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 120,
			BurstSize:         20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the form ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Embeddings.MaxEmbeddingsFiles == 0 {
		return fmt.Errorf("embeddings.max_embeddings_files must be at least 1")
	}
	if c.Embeddings.CacheTTLSeconds <= 0 {
		return fmt.Errorf("embeddings.cache_ttl_seconds must be positive")
	}
	if c.Embeddings.ParallelThreshold < 0 {
		return fmt.Errorf("embeddings.parallel_threshold cannot be negative")
	}
	if _, err := similarity.ParseMetric(c.Embeddings.SimilarityMetric); err != nil {
		return fmt.Errorf("embeddings.similarity_metric: %w", err)
	}

	switch c.Descriptor.Driver {
	case "static":
	case "postgres":
		if c.Descriptor.DSN == "" {
			return fmt.Errorf("descriptor.dsn is required for the postgres driver")
		}
	case "dynamodb":
		if c.Descriptor.Table == "" {
			return fmt.Errorf("descriptor.table is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("unknown descriptor driver: %q", c.Descriptor.Driver)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}

	return nil
}
