package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// S3Config describes the object storage used for calendar snapshots.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
	// Keep is the number of timestamped snapshots retained. Zero keeps all.
	Keep int `yaml:"keep"`
}

// Enabled reports whether enough is configured to reach a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`

	// StoreTimeout bounds each event store call made by the scheduler.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// ResyncCron re-publishes confirmed orders so rows written by other
	// processes get picked up. Empty disables it.
	ResyncCron string `yaml:"resync_cron"`
	// SnapshotCron uploads an ICS snapshot. Empty disables it.
	SnapshotCron string `yaml:"snapshot_cron"`

	// WriteRateLimit is the number of write requests allowed per client per minute.
	WriteRateLimit int `yaml:"write_rate_limit"`

	S3 S3Config `yaml:"s3"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:           "8080",
		DBPath:         "duende.db",
		LogLevel:       "info",
		LogFormat:      "text",
		StoreTimeout:   10 * time.Second,
		ResyncCron:     "*/5 * * * *",
		SnapshotCron:   "0 3 * * *",
		WriteRateLimit: 60,
		S3: S3Config{
			Region: "auto",
			Prefix: "snapshots/",
			Keep:   30,
		},
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.WriteRateLimit <= 0 {
		c.WriteRateLimit = d.WriteRateLimit
	}
	if c.S3.Region == "" {
		c.S3.Region = d.S3.Region
	}
	if c.S3.Prefix != "" && !strings.HasSuffix(c.S3.Prefix, "/") {
		c.S3.Prefix += "/"
	}
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.Port, err)
	}
	if c.S3.Bucket != "" && !c.S3.Enabled() {
		return errors.New("s3 bucket configured without access key and secret key")
	}
	return nil
}

// Load reads the YAML file at path, applies DUENDE_* environment overrides,
// fills defaults and validates. A missing file is not an error; an empty path
// skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getenvDefault("DUENDE_PORT", c.Port)
	c.DBPath = getenvDefault("DUENDE_DB_PATH", c.DBPath)
	c.LogLevel = getenvDefault("DUENDE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenvDefault("DUENDE_LOG_FORMAT", c.LogFormat)
	c.StoreTimeout = getenvDuration("DUENDE_STORE_TIMEOUT", c.StoreTimeout)
	c.ResyncCron = getenvAllowEmpty("DUENDE_RESYNC_CRON", c.ResyncCron)
	c.SnapshotCron = getenvAllowEmpty("DUENDE_SNAPSHOT_CRON", c.SnapshotCron)
	c.WriteRateLimit = getenvInt("DUENDE_WRITE_RATE_LIMIT", c.WriteRateLimit)

	c.S3.Endpoint = getenvDefault("DUENDE_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Bucket = getenvDefault("DUENDE_S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getenvDefault("DUENDE_S3_REGION", c.S3.Region)
	c.S3.AccessKey = getenvDefault("DUENDE_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = getenvDefault("DUENDE_S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.Prefix = getenvDefault("DUENDE_S3_PREFIX", c.S3.Prefix)
	c.S3.Keep = getenvInt("DUENDE_S3_KEEP", c.S3.Keep)
}

func getenvDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// getenvAllowEmpty lets a set-but-empty variable clear the value.
func getenvAllowEmpty(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
