// Package engine runs the external codec engine (ffmpeg) as an isolated
// subprocess per invocation, probes media headers through it, and caches
// whether the engine is usable at all.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"time"
)

const (
	// MaxDiagnosticBytes bounds the stderr tail kept per invocation.
	MaxDiagnosticBytes = 4000

	// waitDelay bounds how long Wait blocks on inherited pipes after the
	// engine has been killed.
	waitDelay = 5 * time.Second
)

// Runner executes one engine invocation. Each call is a fresh process; no
// engine state is shared between calls or requests.
type Runner interface {
	// Run starts the engine with args in working directory dir and waits for
	// it. A non-zero exit yields an *EngineFailure; a missing binary yields
	// ErrEngineUnavailable.
	Run(ctx context.Context, dir string, args ...string) (Result, error)
}

// Result is the outcome of one engine invocation.
type Result struct {
	ExitCode       int           `json:"exit_code"`
	DiagnosticTail string        `json:"diagnostic_tail,omitempty"` // last N bytes of stderr
	Duration       time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r Result) IsSuccess() bool { return r.ExitCode == 0 }

// SubprocessRunner is the production Runner backed by an ffmpeg binary.
type SubprocessRunner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger

	lookPath func(string) (string, error)
}

// NewSubprocessRunner creates a runner for the given binary name or path.
// A zero timeout means invocations are bounded only by their context.
func NewSubprocessRunner(binary string, timeout time.Duration, logger *slog.Logger) *SubprocessRunner {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &SubprocessRunner{
		binary:   binary,
		timeout:  timeout,
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

// Binary returns the configured engine binary.
func (r *SubprocessRunner) Binary() string {
	return r.binary
}

// Run is the core subprocess execution helper.
func (r *SubprocessRunner) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	start := time.Now()

	path, err := r.lookPath(r.binary)
	if err != nil {
		r.logger.Error("codec engine not found", "binary", r.binary, "error", err)
		return Result{ExitCode: -1, Duration: time.Since(start)}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmdArgs := append([]string{"-hide_banner", "-nostdin"}, args...)
	cmd := exec.CommandContext(ctx, path, cmdArgs...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	// Capture diagnostics with bounded buffer. The same writer serves stdout
	// so that -version output is visible; exec serialises writes to it.
	var stderrBuf bytes.Buffer
	diag := &limitedWriter{w: &stderrBuf, limit: MaxDiagnosticBytes}
	cmd.Stderr = diag
	cmd.Stdout = diag

	r.logger.Debug("executing engine command", "args", cmdArgs, "dir", dir)

	err = cmd.Run()
	elapsed := time.Since(start)
	tail := stderrBuf.String()

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			res := Result{ExitCode: exitErr.ExitCode(), DiagnosticTail: tail, Duration: elapsed}
			failure := &EngineFailure{ExitCode: res.ExitCode, DiagnosticTail: tail}
			if ctxErr := ctx.Err(); ctxErr != nil {
				failure.Err = ctxErr
			}
			r.logger.Debug("engine command failed",
				"exit_code", res.ExitCode,
				"duration_ms", elapsed.Milliseconds(),
				"diagnostic_tail", Truncate(tail, 512),
			)
			return res, failure
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			return Result{ExitCode: -1, Duration: elapsed}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		default:
			res := Result{ExitCode: -1, DiagnosticTail: tail, Duration: elapsed}
			return res, &EngineFailure{ExitCode: -1, DiagnosticTail: tail, Err: err}
		}
	}

	r.logger.Debug("engine command succeeded", "duration_ms", elapsed.Milliseconds())
	return Result{ExitCode: 0, DiagnosticTail: tail, Duration: elapsed}, nil
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
