package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/storyreel/stitcher/internal/stitch"
)

const writeTimeout = 5 * time.Second

// Tracker mirrors one stitch into the ledger. Ledger write failures are
// logged and never fail the stitch itself. A nil Tracker is valid and
// records nothing.
type Tracker struct {
	repo   Repository
	runID  string
	logger *slog.Logger
}

// Start records a new running run and returns its tracker.
func Start(ctx context.Context, repo Repository, run *Run, logger *slog.Logger) (*Tracker, error) {
	if err := repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return &Tracker{repo: repo, runID: run.ID, logger: logger}, nil
}

func (t *Tracker) RunID() string {
	if t == nil {
		return ""
	}
	return t.runID
}

// Hooks returns stitch hooks that persist state changes and progress.
func (t *Tracker) Hooks() stitch.Hooks {
	if t == nil {
		return stitch.Hooks{}
	}
	return stitch.Hooks{
		OnProgress: func(p stitch.Progress) {
			t.write("record progress", func(ctx context.Context) error {
				return t.repo.RecordProgress(ctx, t.runID, p.Percent, p.Message)
			})
		},
		OnState: func(s stitch.State) {
			if s.Terminal() {
				// Terminal rows are written by Succeed and Fail with their details.
				return
			}
			t.write("update state", func(ctx context.Context) error {
				return t.repo.UpdateRunState(ctx, t.runID, string(s))
			})
		},
	}
}

// Succeed closes the run with the streamed artifact's size and duration.
func (t *Tracker) Succeed(outputBytes int64, durationSec float64) {
	t.write("complete run", func(ctx context.Context) error {
		return t.repo.CompleteRun(ctx, t.runID, outputBytes, durationSec)
	})
}

// Fail closes the run with the error's kind and message.
func (t *Tracker) Fail(err error) {
	t.write("fail run", func(ctx context.Context) error {
		return t.repo.FailRun(ctx, t.runID, string(stitch.KindOf(err)), err.Error())
	})
}

func (t *Tracker) write(op string, fn func(ctx context.Context) error) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && t.logger != nil {
		t.logger.Warn("ledger write failed", "op", op, "run_id", t.runID, "error", err)
	}
}
