package engine

import (
	"context"
	"errors"
	"math"
	"testing"
)

const bannerWithAudio = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'clip_000.mp4':
  Metadata:
    major_brand     : isom
    encoder         : Lavf60.3.100
  Duration: 00:00:05.04, start: 0.000000, bitrate: 1840 kb/s
  Stream #0:0[0x1](und): Video: h264 (High) (avc1 / 0x31637661), yuv420p(progressive), 1280x720, 1700 kb/s, 24 fps, 24 tbr, 12288 tbn (default)
  Stream #0:1[0x2](und): Audio: aac (LC) (mp4a / 0x6134706D), 44100 Hz, stereo, fltp, 128 kb/s (default)
At least one output file must be specified
`

const bannerVideoOnly = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'clip_001.mp4':
  Duration: 01:02:03.50, start: 0.000000, bitrate: 900 kb/s
  Stream #0:0[0x1](und): Video: h264 (Main), yuv420p, 768x432, 24 fps
  Metadata:
    comment         : Audio: none
At least one output file must be specified
`

type scriptedRunner struct {
	calls [][]string
	dirs  []string
	fn    func(args []string) (Result, error)
}

func (s *scriptedRunner) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	s.calls = append(s.calls, args)
	s.dirs = append(s.dirs, dir)
	return s.fn(args)
}

func TestParseBanner(t *testing.T) {
	tests := []struct {
		name      string
		banner    string
		wantDur   float64
		wantAudio bool
		wantErr   bool
	}{
		{"video with audio", bannerWithAudio, 5.04, true, false},
		{"video only ignores metadata mention", bannerVideoOnly, 3723.5, false, false},
		{"integer seconds", "Duration: 00:00:03, start: 0", 3, false, false},
		{"missing duration", "Duration: N/A, bitrate: N/A", 0, false, true},
		{"zero duration", "Duration: 00:00:00.00, start: 0.000000", 0, false, true},
		{"empty", "", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBanner(tt.banner)
			if tt.wantErr {
				if !errors.Is(err, ErrNoDuration) {
					t.Fatalf("error = %v, want ErrNoDuration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got.DurationSec-tt.wantDur) > 1e-9 {
				t.Errorf("DurationSec = %v, want %v", got.DurationSec, tt.wantDur)
			}
			if got.HasAudio != tt.wantAudio {
				t.Errorf("HasAudio = %v, want %v", got.HasAudio, tt.wantAudio)
			}
		})
	}
}

func TestProber_ReadsBannerFromFailure(t *testing.T) {
	runner := &scriptedRunner{fn: func(args []string) (Result, error) {
		return Result{ExitCode: 1, DiagnosticTail: bannerWithAudio}, &EngineFailure{ExitCode: 1, DiagnosticTail: bannerWithAudio}
	}}

	got, err := NewProber(runner).Probe(context.Background(), "/scratch/stitch-1/clip_000.mp4")
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if !got.HasAudio || math.Abs(got.DurationSec-5.04) > 1e-9 {
		t.Errorf("Probe = %+v", got)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "-i" || runner.calls[0][1] != "clip_000.mp4" {
		t.Errorf("unexpected args %v", runner.calls)
	}
	if runner.dirs[0] != "/scratch/stitch-1" {
		t.Errorf("dir = %q, want the clip's directory", runner.dirs[0])
	}
}

func TestProber_EngineUnavailable(t *testing.T) {
	runner := &scriptedRunner{fn: func(args []string) (Result, error) {
		return Result{ExitCode: -1}, ErrEngineUnavailable
	}}

	_, err := NewProber(runner).Probe(context.Background(), "/tmp/x.mp4")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("error = %v, want ErrEngineUnavailable", err)
	}
}

func TestProber_NoDuration(t *testing.T) {
	runner := &scriptedRunner{fn: func(args []string) (Result, error) {
		tail := "clip.mp4: Invalid data found when processing input"
		return Result{ExitCode: 1, DiagnosticTail: tail}, &EngineFailure{ExitCode: 1, DiagnosticTail: tail}
	}}

	_, err := NewProber(runner).Probe(context.Background(), "/tmp/clip.mp4")
	if !errors.Is(err, ErrNoDuration) {
		t.Fatalf("error = %v, want ErrNoDuration", err)
	}
}
