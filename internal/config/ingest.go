package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/reconify/internal/tabular"
	"github.com/JaimeStill/reconify/pkg/formatting"
)

const (
	EnvIngestBatchSize         = "RECONIFY_INGEST_BATCH_SIZE"
	EnvIngestMaxUploadSize     = "RECONIFY_INGEST_MAX_UPLOAD_SIZE"
	EnvIngestAllowedExtensions = "RECONIFY_INGEST_ALLOWED_EXTENSIONS"
	EnvIngestStatusRetention   = "RECONIFY_INGEST_STATUS_RETENTION"
)

// IngestConfig bounds uploads and tunes the generation swap.
type IngestConfig struct {
	BatchSize         int      `toml:"batch_size"`
	MaxUploadSize     string   `toml:"max_upload_size"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	StatusRetention   string   `toml:"status_retention"`
}

// MaxUploadSizeBytes returns MaxUploadSize in bytes.
func (c *IngestConfig) MaxUploadSizeBytes() int64 {
	size, _ := formatting.ParseBytes(c.MaxUploadSize)
	return size
}

// StatusRetentionDuration returns StatusRetention as a time.Duration.
func (c *IngestConfig) StatusRetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.StatusRetention)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *IngestConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *IngestConfig) Merge(overlay *IngestConfig) {
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if len(overlay.AllowedExtensions) > 0 {
		c.AllowedExtensions = overlay.AllowedExtensions
	}
	if overlay.StatusRetention != "" {
		c.StatusRetention = overlay.StatusRetention
	}
}

func (c *IngestConfig) loadDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "50MB"
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = slices.Clone(tabular.Extensions)
	}
	if c.StatusRetention == "" {
		c.StatusRetention = "1h"
	}
}

func (c *IngestConfig) loadEnv() {
	if v := os.Getenv(EnvIngestBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvIngestMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv(EnvIngestAllowedExtensions); v != "" {
		var exts []string
		for ext := range strings.SplitSeq(v, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				exts = append(exts, ext)
			}
		}
		c.AllowedExtensions = exts
	}
	if v := os.Getenv(EnvIngestStatusRetention); v != "" {
		c.StatusRetention = v
	}
}

func (c *IngestConfig) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch_size: %d", c.BatchSize)
	}
	if size, err := formatting.ParseBytes(c.MaxUploadSize); err != nil || size < 1 {
		return fmt.Errorf("invalid max_upload_size: %q", c.MaxUploadSize)
	}
	for i, ext := range c.AllowedExtensions {
		ext = strings.ToLower(ext)
		if !tabular.Supported(ext) {
			return fmt.Errorf("unsupported extension in allowed_extensions: %q", ext)
		}
		c.AllowedExtensions[i] = ext
	}
	if _, err := time.ParseDuration(c.StatusRetention); err != nil {
		return fmt.Errorf("invalid status_retention: %w", err)
	}
	return nil
}
