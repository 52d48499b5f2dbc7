package stitch

import (
	"context"
	"math"
	"path/filepath"
	"strconv"

	"github.com/storyreel/stitcher/internal/config"
	"github.com/storyreel/stitcher/internal/engine"
	"github.com/storyreel/stitcher/internal/filtergraph"
)

// minTrimWindow keeps every trimmed clip at least this long.
const minTrimWindow = 0.01

// Plan is the resolved edit of one clip, with every directive clamped.
type Plan struct {
	TrimStart    float64
	TrimEnd      float64
	Speed        float64
	FadeIn       float64
	FadeOut      float64
	OutDuration  float64
	FadeOutStart float64
}

// PlanClip resolves a clip's directives against its probed duration.
func PlanClip(spec ClipSpec, probed engine.ProbeResult) Plan {
	dur := probed.DurationSec

	start := 0.0
	if spec.TrimStartSec != nil && finite(*spec.TrimStartSec) {
		start = *spec.TrimStartSec
	}
	start = math.Max(0, math.Min(start, dur-minTrimWindow))

	end := dur
	if spec.TrimEndSec != nil && finite(*spec.TrimEndSec) {
		end = *spec.TrimEndSec
	}
	end = math.Max(start+minTrimWindow, math.Min(end, dur))

	p := Plan{
		TrimStart: start,
		TrimEnd:   end,
		Speed:     filtergraph.ClampSpeed(spec.Speed),
		FadeIn:    filtergraph.ClampFade(spec.FadeInSec),
		FadeOut:   filtergraph.ClampFade(spec.FadeOutSec),
	}
	p.OutDuration = (p.TrimEnd - p.TrimStart) / p.Speed
	p.FadeOutStart = math.Max(0, p.OutDuration-p.FadeOut)
	return p
}

// Normalizer re-encodes one raw clip into the uniform intermediate profile.
type Normalizer struct {
	runner  engine.Runner
	encoder config.EncoderSettings
}

func NewNormalizer(runner engine.Runner, encoder config.EncoderSettings) *Normalizer {
	return &Normalizer{runner: runner, encoder: encoder}
}

// Normalize writes the intermediate for raw to out. Both paths must live in
// the same directory, which becomes the engine's working directory.
func (n *Normalizer) Normalize(ctx context.Context, raw, out string, spec ClipSpec, probed engine.ProbeResult, audioEnabled bool, post PostOptions) (Plan, error) {
	plan := PlanClip(spec, probed)
	args, err := n.Args(filepath.Base(raw), filepath.Base(out), plan, probed.HasAudio, audioEnabled, post.Color())
	if err != nil {
		return plan, &Error{Kind: KindNormalize, Message: "could not build filter graph", Err: err}
	}
	if _, err := n.runner.Run(ctx, filepath.Dir(out), args...); err != nil {
		return plan, engineError(KindNormalize, "engine rejected clip normalization", err)
	}
	return plan, nil
}

// Args builds the engine arguments for one normalization.
func (n *Normalizer) Args(raw, out string, plan Plan, hasAudio, audioEnabled bool, color filtergraph.Color) ([]string, error) {
	video := filtergraph.NewVideoBuilder().
		ScaleEven().
		Speed(plan.Speed).
		Color(color).
		FadeIn(plan.FadeIn).
		FadeOut(plan.FadeOutStart, plan.FadeOut).
		Build()

	args := []string{
		"-y",
		"-ss", filtergraph.Num(plan.TrimStart),
		"-t", filtergraph.Num(plan.TrimEnd - plan.TrimStart),
		"-i", raw,
	}

	if !audioEnabled {
		args = append(args, "-vf", video.String(), "-an")
		args = append(args, videoCodecArgs(n.encoder)...)
		args = append(args, pixelFormatArgs(n.encoder)...)
		return append(args, "-movflags", "+faststart", out), nil
	}

	var graph filtergraph.Graph
	graph.Add([]string{"0:v"}, video, "v")
	if hasAudio {
		source := filtergraph.NewAudioBuilder().
			Normalize().
			ResetTimestamps().
			Tempo(plan.Speed).
			FadeIn(plan.FadeIn).
			FadeOut(plan.FadeOutStart, plan.FadeOut).
			Build()
		graph.Add([]string{"0:a"}, source, "src")
		graph.Add(nil, filtergraph.Silence(plan.OutDuration), "bed")
		graph.Add([]string{"src", "bed"}, filtergraph.MixWithBed(2), "a")
	} else {
		graph.Add(nil, filtergraph.Silence(plan.OutDuration), "a")
	}

	fc, err := graph.String()
	if err != nil {
		return nil, err
	}

	args = append(args, "-filter_complex", fc, "-map", "[v]", "-map", "[a]")
	args = append(args, videoCodecArgs(n.encoder)...)
	args = append(args, pixelFormatArgs(n.encoder)...)
	args = append(args, audioCodecArgs(n.encoder)...)
	return append(args, "-shortest", "-movflags", "+faststart", out), nil
}

func videoCodecArgs(enc config.EncoderSettings) []string {
	args := []string{"-c:v", enc.VideoCodec}
	if enc.VideoPreset != "" {
		args = append(args, "-preset", enc.VideoPreset)
	}
	if enc.VideoCRF > 0 {
		args = append(args, "-crf", strconv.Itoa(enc.VideoCRF))
	}
	return args
}

func pixelFormatArgs(enc config.EncoderSettings) []string {
	if enc.PixelFormat == "" {
		return nil
	}
	return []string{"-pix_fmt", enc.PixelFormat}
}

func audioCodecArgs(enc config.EncoderSettings) []string {
	args := []string{"-c:a", enc.AudioCodec}
	if enc.AudioBitrate != "" {
		args = append(args, "-b:a", enc.AudioBitrate)
	}
	return append(args,
		"-ar", strconv.Itoa(filtergraph.SampleRate),
		"-ac", "2",
	)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
