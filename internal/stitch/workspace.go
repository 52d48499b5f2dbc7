package stitch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	workspacePrefix = "stitch-"

	ManifestName = "concat.txt"
	OutputName   = "output.mp4"
)

// Workspace is the private scratch directory of one stitch request. Close
// removes it and is safe to call more than once.
type Workspace struct {
	dir string

	once     sync.Once
	closeErr error
}

// NewWorkspace creates a uniquely named directory under root.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}
	dir, err := os.MkdirTemp(root, workspacePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// RawClip is where the i-th downloaded clip is stored.
func (w *Workspace) RawClip(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf("clip_%03d.mp4", i))
}

// NormalizedClip is where the i-th intermediate is written.
func (w *Workspace) NormalizedClip(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf("norm_%03d.mp4", i))
}

func (w *Workspace) Output() string {
	return filepath.Join(w.dir, OutputName)
}

func (w *Workspace) Close() error {
	w.once.Do(func() {
		w.closeErr = os.RemoveAll(w.dir)
	})
	return w.closeErr
}

// SweepStale removes workspaces under root older than maxAge. They can only
// be left behind by a process that died mid-request.
func SweepStale(root string, maxAge time.Duration, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list scratch root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		if logger != nil {
			logger.Info("removed stale workspace", "dir", e.Name())
		}
	}
	return removed, errors.Join(errs...)
}
