package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/sync"
	"github.com/vaultlink/vaultlink/internal/vault"
)

const shutdownTimeout = 10 * time.Second

// Daemon runs the sync engine and its control plane for one vault.
type Daemon struct {
	config *config.Config
	store  *vault.DirStore
	engine *sync.Engine
	cps    *ControlPlaneServer
}

// NewDaemon wires a daemon for the vault named in cfg. confirm decides
// outbound deletion prompts.
func NewDaemon(cfg *config.Config, confirm sync.Confirm) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := vault.NewDirStore(cfg.VaultDir)
	if err != nil {
		return nil, fmt.Errorf("vault store: %w", err)
	}

	engine, err := sync.NewEngine(store, confirm, nil)
	if err != nil {
		return nil, fmt.Errorf("sync engine: %w", err)
	}

	cps, err := NewControlPlaneServer(cfg, engine)
	if err != nil {
		return nil, fmt.Errorf("control plane: %w", err)
	}

	return &Daemon{
		config: cfg,
		store:  store,
		engine: engine,
		cps:    cps,
	}, nil
}

// Engine exposes the running sync engine.
func (d *Daemon) Engine() *sync.Engine {
	return d.engine
}

// Start opens the vault, brings up the engine and the control plane, and
// blocks until the context is canceled or a component fails.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("daemon start", "vault", d.config.VaultDir, "addr", d.config.Addr)

	if err := d.store.Open(); err != nil {
		return fmt.Errorf("open vault: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.engine.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync engine: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		if err := d.cps.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		return nil
	})

	// Shutdown on context cancellation
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("shutting down daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

func (d *Daemon) Stop(ctx context.Context) error {
	d.engine.Stop()
	if err := d.cps.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop control plane: %w", err)
	}
	if err := d.store.Close(); err != nil {
		slog.Warn("close vault store", "error", err)
	}
	return nil
}
