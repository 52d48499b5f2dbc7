package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/storyreel/stitcher/internal/config"
	"github.com/storyreel/stitcher/internal/engine"
	"github.com/storyreel/stitcher/internal/logging"
	"github.com/storyreel/stitcher/internal/stitch"
)

var (
	logLevel string
	cfg      *config.EnvConfig
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "stitcher",
	Short:         "stitcher - joins remote clips into one normalized film",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.New()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("stitcher %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime))
}

// newLogger logs to stderr so the one-shot commands keep stdout for output.
func newLogger() *slog.Logger {
	level := cfg.LogLevel()
	if logLevel != "" {
		level = logLevel
	}
	return logging.NewLoggerTo(os.Stderr, level)
}

// pipeline is the engine plus the orchestrator built around it.
type pipeline struct {
	runner *engine.SubprocessRunner
	doctor *engine.CachedDoctor
	orch   *stitch.Orchestrator
	policy *stitch.OriginPolicy
}

func newPipeline(logger *slog.Logger, publicBaseURL string) (*pipeline, error) {
	policy, err := stitch.NewOriginPolicy(publicBaseURL, cfg.TrustedHosts())
	if err != nil {
		return nil, err
	}

	runner := engine.NewSubprocessRunner(cfg.FFmpegPath(), cfg.EngineTimeout(), logging.WithComponent(logger, "engine"))
	doctor := engine.NewCachedDoctor(runner, logger)
	fetcher := stitch.NewFetcher(cfg.FetchTimeout(), cfg.MaxClipBytes(), logging.WithComponent(logger, "fetch"))

	orch := stitch.NewOrchestrator(runner, doctor, fetcher, stitch.Options{
		ScratchRoot:      cfg.ScratchDir(),
		MaxClips:         cfg.MaxClips(),
		MaxConcurrent:    cfg.MaxConcurrent(),
		AdmissionTimeout: cfg.AdmissionTimeout(),
		Encoder:          cfg.Encoder(),
	}, logging.WithComponent(logger, "stitch"))

	return &pipeline{runner: runner, doctor: doctor, orch: orch, policy: policy}, nil
}
