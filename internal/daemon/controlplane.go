package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/daemon/middleware"
	"github.com/vaultlink/vaultlink/internal/sync"
)

// ControlPlaneServer serves the local HTTP API the CLI talks to.
type ControlPlaneServer struct {
	config *config.Config
	server *http.Server
	engine *sync.Engine
}

func NewControlPlaneServer(cfg *config.Config, engine *sync.Engine) (*ControlPlaneServer, error) {
	routes := SetupRoutes(engine, &RouteConfig{
		Auth: middleware.TokenAuthConfig{
			Token: cfg.Token,
		},
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks. Writes get long
		// because push and full sync run inside the request.
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Connection control
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return &ControlPlaneServer{
		config: cfg,
		server: httpServer,
		engine: engine,
	}, nil
}

func (s *ControlPlaneServer) Start(ctx context.Context) error {
	slog.Info("control plane start", "addr", fmt.Sprintf("http://%s", s.config.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}
