package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrNoDuration means the header banner carried no usable duration.
var ErrNoDuration = errors.New("no duration in media header")

var (
	reDuration    = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	reAudioStream = regexp.MustCompile(`(?m)^\s*Stream #\d+:\d+.*?: Audio:`)
)

// ProbeResult is what the normalizer needs to know about a source clip.
type ProbeResult struct {
	DurationSec float64
	HasAudio    bool
}

// Prober reads a media header through the engine without writing any output.
type Prober struct {
	runner Runner
}

func NewProber(runner Runner) *Prober {
	return &Prober{runner: runner}
}

// Probe runs the engine in header-only mode on file. The engine always exits
// non-zero here (no output file is given), so the banner is read from the
// diagnostic tail of either outcome.
func (p *Prober) Probe(ctx context.Context, file string) (ProbeResult, error) {
	res, err := p.runner.Run(ctx, filepath.Dir(file), "-i", filepath.Base(file))
	banner := res.DiagnosticTail
	if err != nil {
		if errors.Is(err, ErrEngineUnavailable) {
			return ProbeResult{}, err
		}
		failure, ok := AsFailure(err)
		if !ok {
			return ProbeResult{}, err
		}
		banner = failure.DiagnosticTail
	}
	return ParseBanner(banner)
}

// ParseBanner extracts duration and audio presence from the engine's
// human-readable input banner.
func ParseBanner(banner string) (ProbeResult, error) {
	m := reDuration.FindStringSubmatch(banner)
	if m == nil {
		return ProbeResult{}, ErrNoDuration
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %q", ErrNoDuration, m[0])
	}

	duration := float64(hours*3600+minutes*60) + seconds
	if duration <= 0 {
		return ProbeResult{}, fmt.Errorf("%w: non-positive duration %q", ErrNoDuration, m[0])
	}

	return ProbeResult{
		DurationSec: duration,
		HasAudio:    reAudioStream.MatchString(banner),
	}, nil
}
