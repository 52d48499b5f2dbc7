package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/storyreel/stitcher/internal/stitch"
)

var (
	runOutput  string
	runBaseURL string
)

// The one-shot command does not touch the ledger: opening it marks running
// rows as interrupted, which would clobber a live serve process.
var runCmd = &cobra.Command{
	Use:   "run [request.json]",
	Short: "Stitch one request file to a local output",
	Long: "Reads a stitch request (clips, audio and post options, title) from a JSON file,\n" +
		"runs it through the same pipeline as the service and writes the film locally.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read request: %w", err)
		}
		var req stitch.StitchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("invalid request file: %w", err)
		}

		base := runBaseURL
		if base == "" {
			base = cfg.PublicBaseURL()
		}
		p, err := newPipeline(logger, base)
		if err != nil {
			return err
		}

		hooks := stitch.Hooks{
			OnProgress: func(pr stitch.Progress) {
				logger.Info("progress", "percent", pr.Percent, "message", pr.Message)
			},
			OnState: func(s stitch.State) {
				logger.Debug("state", "state", s)
			},
		}

		art, err := p.orch.Stitch(cmd.Context(), &req, p.policy, hooks)
		if err != nil {
			return err
		}
		defer art.Close()

		out := runOutput
		if out == "" {
			out = art.Filename
		}
		n, err := writeArtifact(art, out)
		if err != nil {
			return err
		}

		logger.Info("film written", "path", out, "bytes", n, "duration_sec", art.DurationSec)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file (default: derived from the title)")
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "origin that relative clip URLs resolve against")
}

func writeArtifact(art *stitch.Artifact, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output: %w", err)
	}
	n, err := art.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return n, fmt.Errorf("failed to write output: %w", err)
	}
	return n, nil
}
