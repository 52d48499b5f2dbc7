package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/storyreel/stitcher/internal/logging"
)

// writeScript drops an executable shell script that stands in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := Result{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("Result{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestLimitedWriter_ReportsFullLength(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 5}

	n, err := lw.Write([]byte("1234567890"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 10 {
		t.Errorf("Write returned %d, want 10", n)
	}
	if buf.String() != "67890" {
		t.Errorf("buffer = %q, want %q", buf.String(), "67890")
	}
}

func TestSubprocessRunner_Success(t *testing.T) {
	script := writeScript(t, `echo "ffmpeg version 6.1 Copyright" ; pwd >&2 ; exit 0`)
	workDir := t.TempDir()

	r := NewSubprocessRunner(script, 0, logging.Discard())
	res, err := r.Run(context.Background(), workDir, "-version")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !res.IsSuccess() {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.DiagnosticTail, "ffmpeg version 6.1") {
		t.Errorf("stdout not captured: %q", res.DiagnosticTail)
	}
	resolved, _ := filepath.EvalSymlinks(workDir)
	if !strings.Contains(res.DiagnosticTail, resolved) && !strings.Contains(res.DiagnosticTail, workDir) {
		t.Errorf("engine did not run in working dir %q: %q", workDir, res.DiagnosticTail)
	}
}

func TestSubprocessRunner_PassesGlobalFlagsFirst(t *testing.T) {
	script := writeScript(t, `echo "$@" >&2`)

	r := NewSubprocessRunner(script, 0, logging.Discard())
	res, err := r.Run(context.Background(), t.TempDir(), "-i", "clip.mp4")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := strings.TrimSpace(res.DiagnosticTail); got != "-hide_banner -nostdin -i clip.mp4" {
		t.Errorf("args = %q", got)
	}
}

func TestSubprocessRunner_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "Invalid data found when processing input" >&2 ; exit 3`)

	r := NewSubprocessRunner(script, 0, logging.Discard())
	res, err := r.Run(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error %T is not an EngineFailure", err)
	}
	if failure.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", failure.ExitCode, res.ExitCode)
	}
	if !strings.Contains(failure.DiagnosticTail, "Invalid data found") {
		t.Errorf("diagnostic tail = %q", failure.DiagnosticTail)
	}
	if errors.Is(err, ErrEngineUnavailable) {
		t.Error("non-zero exit must not be reported as unavailable")
	}
}

func TestSubprocessRunner_DiagnosticTailBounded(t *testing.T) {
	script := writeScript(t, `i=0; while [ $i -lt 2000 ]; do echo "line $i of noisy output" >&2; i=$((i+1)); done; echo "final error" >&2; exit 1`)

	r := NewSubprocessRunner(script, 0, logging.Discard())
	_, err := r.Run(context.Background(), t.TempDir())
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected EngineFailure, got %v", err)
	}
	if len(failure.DiagnosticTail) > MaxDiagnosticBytes {
		t.Errorf("tail length %d exceeds %d", len(failure.DiagnosticTail), MaxDiagnosticBytes)
	}
	if !strings.HasSuffix(strings.TrimSpace(failure.DiagnosticTail), "final error") {
		t.Errorf("tail does not end with the last line: %q", Truncate(failure.DiagnosticTail, 80))
	}
}

func TestSubprocessRunner_MissingBinary(t *testing.T) {
	r := NewSubprocessRunner(filepath.Join(t.TempDir(), "no-such-ffmpeg"), 0, logging.Discard())
	_, err := r.Run(context.Background(), t.TempDir(), "-version")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("error = %v, want ErrEngineUnavailable", err)
	}
}

func TestSubprocessRunner_Timeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)

	r := NewSubprocessRunner(script, 50*time.Millisecond, logging.Discard())
	_, err := r.Run(context.Background(), t.TempDir())
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected EngineFailure, got %v", err)
	}
	if !errors.Is(failure, context.DeadlineExceeded) {
		t.Errorf("failure should wrap the deadline, got %v", failure)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("0123456789abc", 3); got != "...abc" {
		t.Errorf("Truncate long = %q", got)
	}
}
