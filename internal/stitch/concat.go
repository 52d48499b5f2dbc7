package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/storyreel/stitcher/internal/config"
	"github.com/storyreel/stitcher/internal/engine"
	"github.com/storyreel/stitcher/internal/filtergraph"
)

// Concatenator joins normalized intermediates: a stream-copy join first, a
// re-encoding join when that fails.
type Concatenator struct {
	runner  engine.Runner
	encoder config.EncoderSettings
	logger  *slog.Logger
}

func NewConcatenator(runner engine.Runner, encoder config.EncoderSettings, logger *slog.Logger) *Concatenator {
	return &Concatenator{runner: runner, encoder: encoder, logger: logger}
}

// Concatenate joins files in order into output. All paths must share one
// directory; the manifest is written next to them.
func (c *Concatenator) Concatenate(ctx context.Context, files []string, audioEnabled bool, output string) error {
	if len(files) == 0 {
		return &Error{Kind: KindConcat, Message: "nothing to concatenate"}
	}
	dir := filepath.Dir(output)

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	manifest := filepath.Join(dir, ManifestName)
	if err := WriteManifest(manifest, names); err != nil {
		return &Error{Kind: KindInternal, Message: "could not write concat manifest", Err: err}
	}

	out := filepath.Base(output)
	_, err := c.runner.Run(ctx, dir, c.copyArgs(out)...)
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrEngineUnavailable) {
		return engineError(KindConcat, "", err)
	}

	c.logger.Info("stream copy concat failed, re-encoding", "clips", len(files), "error", err)
	if rmErr := os.Remove(output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return &Error{Kind: KindInternal, Message: "could not remove partial output", Err: rmErr}
	}

	if _, err := c.runner.Run(ctx, dir, c.reencodeArgs(out, audioEnabled)...); err != nil {
		return engineError(KindConcat, "engine could not join clips", err)
	}
	return nil
}

func (c *Concatenator) copyArgs(out string) []string {
	return []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", ManifestName,
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	}
}

func (c *Concatenator) reencodeArgs(out string, audioEnabled bool) []string {
	args := []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", ManifestName,
		"-vf", filtergraph.NewVideoBuilder().ScaleEven().Format(c.encoder.PixelFormat).Build().String(),
	}
	args = append(args, videoCodecArgs(c.encoder)...)
	if audioEnabled {
		args = append(args, audioCodecArgs(c.encoder)...)
	} else {
		args = append(args, "-an")
	}
	return append(args, "-movflags", "+faststart", out)
}

// WriteManifest writes a concat demuxer list naming files in order.
func WriteManifest(path string, files []string) error {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, f := range files {
		fmt.Fprintf(&b, "file '%s'\n", escapeManifestPath(f))
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// escapeManifestPath closes the quote, emits an escaped quote and reopens it.
func escapeManifestPath(p string) string {
	return strings.ReplaceAll(p, `'`, `'\''`)
}
