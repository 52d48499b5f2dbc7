package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
)

type doctorReport struct {
	Binary      string `json:"binary"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
	ScratchDir  string `json:"scratch_dir"`
	MaxParallel int    `json:"max_concurrent"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report whether the codec engine can run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		p, err := newPipeline(logger, cfg.PublicBaseURL())
		if err != nil {
			return err
		}

		report := doctorReport{
			Binary:      p.runner.Binary(),
			ScratchDir:  cfg.ScratchDir(),
			MaxParallel: cfg.MaxConcurrent(),
		}
		caps, probeErr := p.doctor.Refresh(cmd.Context())
		if probeErr != nil {
			report.Error = probeErr.Error()
		} else {
			report.Available = caps.Available
			report.Version = caps.Version
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.Available {
			return errors.New("codec engine is not available")
		}
		return nil
	},
}
