// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/reconify/internal/config"
	"github.com/JaimeStill/reconify/internal/infrastructure"
	"github.com/JaimeStill/reconify/pkg/middleware"
	"github.com/JaimeStill/reconify/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// The upload coordinator's retention sweep is registered with the lifecycle.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	if err := domain.Uploads.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("uploads start failed: %w", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(middleware.Recover(runtime.Logger))

	return m, nil
}
