// Package config loads TracceAqua settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"tracceaqua/internal/blob"
	"tracceaqua/internal/core"
)

// Config is the full TracceAqua configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the records API client.
type APIConfig struct {
	URL         string  `yaml:"url"`
	Token       string  `yaml:"token,omitempty"`
	StaleTime   string  `yaml:"stale_time"`
	GCTime      string  `yaml:"gc_time"`
	CacheSize   int     `yaml:"cache_size"`
	MaxRetries  int     `yaml:"max_retries"`
	RetryBase   string  `yaml:"retry_base"`
	RetryMax    string  `yaml:"retry_max"`
	RateLimit   float64 `yaml:"rate_limit"`
	Burst       int     `yaml:"burst"`
	HTTPTimeout string  `yaml:"http_timeout"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// BlobConfig selects the export blob store.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the S3 blob driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration usable for local development.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			URL:         "http://localhost:8080",
			StaleTime:   "30s",
			GCTime:      "5m",
			CacheSize:   128,
			MaxRetries:  3,
			RetryBase:   "200ms",
			RetryMax:    "5s",
			RateLimit:   10,
			Burst:       10,
			HTTPTimeout: "15s",
		},
		Storage: StorageConfig{
			Driver:     string(core.StorageSQLite),
			SQLitePath: "tracceaqua.db",
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "./blobdata",
			S3:     S3Config{Region: "us-east-1"},
		},
		Server: ServerConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  "10s",
			WriteTimeout: "30s",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setString("TRACCEAQUA_API_URL", &c.API.URL)
	setString("TRACCEAQUA_API_TOKEN", &c.API.Token)
	setString("TRACCEAQUA_STORAGE_DRIVER", &c.Storage.Driver)
	setString("TRACCEAQUA_SQLITE_PATH", &c.Storage.SQLitePath)
	setString("TRACCEAQUA_POSTGRES_DSN", &c.Storage.PostgresDSN)
	setString("TRACCEAQUA_BLOB_DRIVER", &c.Blob.Driver)
	setString("TRACCEAQUA_BLOB_FS_ROOT", &c.Blob.FSRoot)
	setString("TRACCEAQUA_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	setString("TRACCEAQUA_BLOB_S3_REGION", &c.Blob.S3.Region)
	setString("TRACCEAQUA_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	setString("TRACCEAQUA_BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	setString("TRACCEAQUA_BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	setString("TRACCEAQUA_LISTEN_ADDR", &c.Server.ListenAddr)
	setString("TRACCEAQUA_LOG_LEVEL", &c.Logging.Level)
	if v := os.Getenv("TRACCEAQUA_BLOB_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.S3.PathStyle = b
		}
	}
}

var (
	validStorageDrivers = []core.StorageDriver{core.StorageMemory, core.StorageSQLite, core.StoragePostgres}
	validBlobDrivers    = []blob.Driver{blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3}
)

// Validate checks the configuration for values the commands cannot use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api url %q: must be an absolute http(s) url", c.API.URL)
	}
	if !contains(validStorageDrivers, core.StorageDriver(c.Storage.Driver)) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, validStorageDrivers)
	}
	if core.StorageDriver(c.Storage.Driver) == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres storage requires a dsn (set TRACCEAQUA_POSTGRES_DSN)")
	}
	if !contains(validBlobDrivers, blob.Driver(c.Blob.Driver)) {
		return fmt.Errorf("invalid blob driver: %s (valid: %v)", c.Blob.Driver, validBlobDrivers)
	}
	if blob.Driver(c.Blob.Driver) == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("s3 blob driver requires a bucket (set TRACCEAQUA_BLOB_S3_BUCKET)")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.API.MaxRetries)
	}
	if c.API.CacheSize < 0 {
		return fmt.Errorf("cache_size must be >= 0, got %d", c.API.CacheSize)
	}
	durations := map[string]string{
		"api.stale_time":       c.API.StaleTime,
		"api.gc_time":          c.API.GCTime,
		"api.retry_base":       c.API.RetryBase,
		"api.retry_max":        c.API.RetryMax,
		"api.http_timeout":     c.API.HTTPTimeout,
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
	}
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	return nil
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// GetStaleTime returns how long fetched records stay fresh.
func (c *Config) GetStaleTime() time.Duration { return duration(c.API.StaleTime, 30*time.Second) }

// GetGCTime returns how long cached records are retained.
func (c *Config) GetGCTime() time.Duration { return duration(c.API.GCTime, 5*time.Minute) }

// GetRetryBase returns the first backoff delay.
func (c *Config) GetRetryBase() time.Duration { return duration(c.API.RetryBase, 200*time.Millisecond) }

// GetRetryMax returns the backoff ceiling.
func (c *Config) GetRetryMax() time.Duration { return duration(c.API.RetryMax, 5*time.Second) }

// GetHTTPTimeout returns the per-request timeout.
func (c *Config) GetHTTPTimeout() time.Duration { return duration(c.API.HTTPTimeout, 15*time.Second) }

// GetReadTimeout returns the server read timeout.
func (c *Config) GetReadTimeout() time.Duration { return duration(c.Server.ReadTimeout, 10*time.Second) }

// GetWriteTimeout returns the server write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return duration(c.Server.WriteTimeout, 30*time.Second)
}

// LogLevel returns the configured zap level, defaulting to info.
func (c *Config) LogLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// StorageConfig converts to the record store selection.
func (c *Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig converts to the blob store selection.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
		},
	}
}
