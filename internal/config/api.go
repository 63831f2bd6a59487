package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/reconify/pkg/middleware"
	"github.com/JaimeStill/reconify/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "RECONIFY_CORS_ENABLED",
	Origins:          "RECONIFY_CORS_ORIGINS",
	AllowedMethods:   "RECONIFY_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "RECONIFY_CORS_ALLOWED_HEADERS",
	AllowCredentials: "RECONIFY_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "RECONIFY_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "RECONIFY_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "RECONIFY_PAGINATION_MAX_PAGE_SIZE",
}

const EnvAPIBasePath = "RECONIFY_API_BASE_PATH"

// APIConfig holds API routing, CORS, and pagination settings.
type APIConfig struct {
	BasePath   string                `toml:"base_path"`
	CORS       middleware.CORSConfig `toml:"cors"`
	Pagination pagination.Config     `toml:"pagination"`
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
}

func (c *APIConfig) validate() error {
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("invalid base_path %q: must start with /", c.BasePath)
	}
	return nil
}
