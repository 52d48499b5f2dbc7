package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/storyreel/stitcher/internal/api"
	"github.com/storyreel/stitcher/internal/config"
	"github.com/storyreel/stitcher/internal/db"
	"github.com/storyreel/stitcher/internal/history"
	"github.com/storyreel/stitcher/internal/stitch"
)

const (
	shutdownTimeout = 30 * time.Second

	// Workspaces older than this belong to a crashed process.
	staleWorkspaceAge = time.Hour
	sweepInterval     = 15 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stitch HTTP service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, newLogger())
	},
}

func serve(ctx context.Context, logger *slog.Logger) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	logger.Info("starting stitcher", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	p, err := newPipeline(logger, cfg.PublicBaseURL())
	if err != nil {
		return err
	}

	sweep(logger)

	initCtx, initCancel := context.WithTimeout(ctx, cfg.EngineTimeout())
	if caps, err := p.doctor.Refresh(initCtx); err != nil {
		logger.Warn("codec engine not available, stitches will fail until it is installed", "binary", p.runner.Binary(), "error", err)
	} else {
		logger.Info("codec engine detected", "version", caps.Version)
	}
	initCancel()

	server := api.NewServer(api.ServerConfig{
		BindAddr:       cfg.BindAddr(),
		Port:           cfg.Port(),
		Stitcher:       p.orch,
		Policy:         p.policy,
		History:        history.NewRepository(database.Conn()),
		Doctor:         p.doctor,
		DB:             database,
		APIToken:       cfg.APIToken(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				sweep(logger)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func sweep(logger *slog.Logger) {
	n, err := stitch.SweepStale(cfg.ScratchDir(), staleWorkspaceAge, logger)
	if err != nil {
		logger.Warn("stale workspace sweep failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("removed stale workspaces", "count", n)
	}
}
