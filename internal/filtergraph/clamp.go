package filtergraph

import "math"

const (
	MinSpeed     = 0.25
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0

	// The engine's time-stretch primitive only accepts ratios in this range
	// per stage.
	MinTempoStage = 0.5
	MaxTempoStage = 2.0

	MaxFadeSec = 5.0

	SampleRate    = 48000
	ChannelLayout = "stereo"
)

// ClampSpeed bounds a requested playback speed to [MinSpeed, MaxSpeed].
// A missing, non-finite or non-positive value means normal speed.
func ClampSpeed(speed *float64) float64 {
	if speed == nil || !finite(*speed) || *speed <= 0 {
		return DefaultSpeed
	}
	return clamp(*speed, MinSpeed, MaxSpeed)
}

// ClampFade bounds a fade length to [0, MaxFadeSec]. Missing or non-finite
// values disable the fade.
func ClampFade(sec *float64) float64 {
	if sec == nil || !finite(*sec) {
		return 0
	}
	return clamp(*sec, 0, MaxFadeSec)
}

// Color is the global brightness/contrast/saturation adjustment.
type Color struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

// NeutralColor leaves the picture untouched.
func NeutralColor() Color {
	return Color{Brightness: 0, Contrast: 1, Saturation: 1}
}

// Clamp bounds each component: brightness [-1,1], contrast [0,2],
// saturation [0,3]. Non-finite components fall back to neutral.
func (c Color) Clamp() Color {
	out := NeutralColor()
	if finite(c.Brightness) {
		out.Brightness = clamp(c.Brightness, -1, 1)
	}
	if finite(c.Contrast) {
		out.Contrast = clamp(c.Contrast, 0, 2)
	}
	if finite(c.Saturation) {
		out.Saturation = clamp(c.Saturation, 0, 3)
	}
	return out
}

// IsNeutral reports whether the clamped adjustment is a no-op.
func (c Color) IsNeutral() bool {
	cc := c.Clamp()
	const eps = 1e-6
	return math.Abs(cc.Brightness) < eps &&
		math.Abs(cc.Contrast-1) < eps &&
		math.Abs(cc.Saturation-1) < eps
}

// TempoStages splits a tempo ratio into cascaded stages that each lie in
// [MinTempoStage, MaxTempoStage] and multiply back to ratio. A ratio of 1
// needs no stage at all.
func TempoStages(ratio float64) []float64 {
	if !finite(ratio) || ratio <= 0 || math.Abs(ratio-1) < 1e-9 {
		return nil
	}

	var stages []float64
	for ratio > MaxTempoStage {
		stages = append(stages, MaxTempoStage)
		ratio /= MaxTempoStage
	}
	for ratio < MinTempoStage {
		stages = append(stages, MinTempoStage)
		ratio /= MinTempoStage
	}
	if math.Abs(ratio-1) > 1e-9 {
		stages = append(stages, ratio)
	}
	return stages
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
