package main

import (
	"fmt"
	"time"

	"github.com/JaimeStill/reconify/internal/api"
	"github.com/JaimeStill/reconify/internal/config"
	"github.com/JaimeStill/reconify/internal/infrastructure"
	"github.com/JaimeStill/reconify/pkg/lifecycle"
	"github.com/JaimeStill/reconify/pkg/module"
)

// Server ties the shared infrastructure to the mounted API module and the
// HTTP listener that serves it.
type Server struct {
	infra *infrastructure.Infrastructure
	http  *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	router, err := newRouter(cfg, infra)
	if err != nil {
		return nil, err
	}

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"storage", cfg.Storage.Kind,
		"base_path", cfg.API.BasePath,
	)

	return &Server{
		infra: infra,
		http:  newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// newRouter mounts the API under its base path next to the health and
// readiness probes. Readiness requires both startup completion and a
// reachable database.
func newRouter(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Router, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, fmt.Errorf("api module: %w", err)
	}

	router := module.NewRouter()
	router.Probes(map[string]lifecycle.ReadinessChecker{
		"lifecycle": infra.Lifecycle,
		"database":  infra.Database,
	})
	router.Mount(apiModule)
	return router, nil
}

// Start registers infrastructure hooks, binds the listener and reports
// readiness once every startup hook has returned.
func (s *Server) Start() error {
	started := time.Now()

	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready", "elapsed", time.Since(started).Round(time.Millisecond))
	}()
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown", "timeout", timeout)
	return s.infra.Lifecycle.Shutdown(timeout)
}
