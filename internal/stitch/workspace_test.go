package stitch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/storyreel/stitcher/internal/logging"
)

func TestWorkspace_Lifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scratch")

	a, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	b, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if a.Dir() == b.Dir() {
		t.Fatal("workspaces must be unique")
	}
	if !strings.HasPrefix(filepath.Base(a.Dir()), "stitch-") {
		t.Errorf("Dir = %s", a.Dir())
	}
	if filepath.Base(a.RawClip(3)) != "clip_003.mp4" || filepath.Base(a.NormalizedClip(12)) != "norm_012.mp4" {
		t.Errorf("unexpected clip names: %s %s", a.RawClip(3), a.NormalizedClip(12))
	}

	if err := os.WriteFile(a.RawClip(0), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := os.Stat(a.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists: %v", err)
	}
	if _, err := os.Stat(b.Dir()); err != nil {
		t.Errorf("closing one workspace touched another: %v", err)
	}
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "stitch-old")
	fresh := filepath.Join(root, "stitch-fresh")
	other := filepath.Join(root, "keep-me")
	for _, d := range []string{old, fresh, other} {
		if err := os.Mkdir(d, 0o700); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	for _, d := range []string{old, other} {
		if err := os.Chtimes(d, past, past); err != nil {
			t.Fatal(err)
		}
	}

	n, err := SweepStale(root, time.Hour, logging.Discard())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale workspace not removed")
	}
	for _, d := range []string{fresh, other} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("%s removed: %v", d, err)
		}
	}

	if n, err := SweepStale(filepath.Join(root, "absent"), time.Hour, nil); n != 0 || err != nil {
		t.Errorf("missing root: n=%d err=%v", n, err)
	}
}

func TestOutputFilename(t *testing.T) {
	tests := map[string]string{
		"":                        "film_stitched.mp4",
		"   ":                     "film_stitched.mp4",
		"Sunset at the pier!":     "Sunset_at_the_pier_stitched.mp4",
		"../../etc/passwd":        "etc_passwd_stitched.mp4",
		`quote"and;semicolon`:     "quote_and_semicolon_stitched.mp4",
		"café-trip_v2.final":      "caf_-trip_v2.final_stitched.mp4",
		"---":                     "film_stitched.mp4",
		strings.Repeat("a", 200):  strings.Repeat("a", 80) + "_stitched.mp4",
	}
	for in, want := range tests {
		if got := OutputFilename(in); got != want {
			t.Errorf("OutputFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
