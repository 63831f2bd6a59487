package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/reconify/pkg/database"
	"github.com/JaimeStill/reconify/pkg/storage"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvReconifyEnv             = "RECONIFY_ENV"
	EnvReconifyShutdownTimeout = "RECONIFY_SHUTDOWN_TIMEOUT"
	EnvReconifyVersion         = "RECONIFY_VERSION"
	EnvReconifyLogLevel        = "RECONIFY_LOG_LEVEL"
	EnvReconifyLogFormat       = "RECONIFY_LOG_FORMAT"
)

var databaseEnv = &database.Env{
	Host:             "RECONIFY_DB_HOST",
	Port:             "RECONIFY_DB_PORT",
	Name:             "RECONIFY_DB_NAME",
	User:             "RECONIFY_DB_USER",
	Password:         "RECONIFY_DB_PASSWORD",
	SSLMode:          "RECONIFY_DB_SSL_MODE",
	MaxOpenConns:     "RECONIFY_DB_MAX_OPEN_CONNS",
	MaxIdleConns:     "RECONIFY_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime:  "RECONIFY_DB_CONN_MAX_LIFETIME",
	ConnTimeout:      "RECONIFY_DB_CONN_TIMEOUT",
	StatementTimeout: "RECONIFY_DB_STATEMENT_TIMEOUT",
	LockTimeout:      "RECONIFY_DB_LOCK_TIMEOUT",
}

var storageEnv = &storage.Env{
	Kind:             "RECONIFY_STORAGE_KIND",
	LocalBasePath:    "RECONIFY_STORAGE_LOCAL_BASE_PATH",
	RemoteHost:       "RECONIFY_STORAGE_REMOTE_HOST",
	RemotePort:       "RECONIFY_STORAGE_REMOTE_PORT",
	RemoteUsername:   "RECONIFY_STORAGE_REMOTE_USERNAME",
	RemotePassword:   "RECONIFY_STORAGE_REMOTE_PASSWORD",
	RemotePrivateKey: "RECONIFY_STORAGE_REMOTE_PRIVATE_KEY",
	RemoteBasePath:   "RECONIFY_STORAGE_REMOTE_BASE_PATH",
	RemoteTimeout:    "RECONIFY_STORAGE_REMOTE_TIMEOUT",
	ObjectProvider:   "RECONIFY_STORAGE_OBJECT_PROVIDER",
	ObjectBucket:     "RECONIFY_STORAGE_OBJECT_BUCKET",
	ObjectConnString: "RECONIFY_STORAGE_OBJECT_CONNECTION_STRING",
	ObjectAccountURL: "RECONIFY_STORAGE_OBJECT_ACCOUNT_URL",
	ObjectRegion:     "RECONIFY_STORAGE_OBJECT_REGION",
	ObjectAccessKey:  "RECONIFY_STORAGE_OBJECT_ACCESS_KEY",
	ObjectSecretKey:  "RECONIFY_STORAGE_OBJECT_SECRET_KEY",
	ObjectEndpoint:   "RECONIFY_STORAGE_OBJECT_ENDPOINT",
}

// Config is the root configuration for the Reconify service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Ingest          IngestConfig    `toml:"ingest"`
	API             APIConfig       `toml:"api"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
	LogLevel        string          `toml:"log_level"`
	LogFormat       string          `toml:"log_format"`
}

// Env returns the RECONIFY_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvReconifyEnv); env != "" {
		return env
	}
	return "local"
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	mergeString(&c.LogLevel, overlay.LogLevel)
	mergeString(&c.LogFormat, overlay.LogFormat)
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Ingest.Merge(&overlay.Ingest)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Ingest.Finalize(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvReconifyShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvReconifyVersion); v != "" {
		c.Version = v
	}
	envString(EnvReconifyLogLevel, &c.LogLevel)
	envString(EnvReconifyLogFormat, &c.LogFormat)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log_format %q: want %s or %s", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvReconifyEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
