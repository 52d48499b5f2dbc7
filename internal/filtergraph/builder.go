package filtergraph

// VideoBuilder assembles a video filter chain step by step. Steps that would
// be no-ops (zero-length fades, neutral colour) are skipped.
type VideoBuilder struct {
	chain Chain
}

// NewVideoBuilder creates an empty video chain.
func NewVideoBuilder() *VideoBuilder {
	return &VideoBuilder{}
}

// ScaleEven rounds both dimensions down to even numbers, which 4:2:0 pixel
// formats require.
func (b *VideoBuilder) ScaleEven() *VideoBuilder {
	b.chain = append(b.chain, Filter{Name: "scale", Options: []Option{
		{Value: "trunc(iw/2)*2"},
		{Value: "trunc(ih/2)*2"},
	}})
	return b
}

// Speed rebases timestamps to zero and divides them by the clamped speed.
func (b *VideoBuilder) Speed(speed float64) *VideoBuilder {
	speed = ClampSpeed(&speed)
	expr := "PTS-STARTPTS"
	if speed != DefaultSpeed {
		expr = "(PTS-STARTPTS)/" + Num(speed)
	}
	b.chain = append(b.chain, Filter{Name: "setpts", Options: []Option{{Value: expr}}})
	return b
}

// Color applies an eq adjustment unless the clamped values are neutral.
func (b *VideoBuilder) Color(c Color) *VideoBuilder {
	if c.IsNeutral() {
		return b
	}
	c = c.Clamp()
	b.chain = append(b.chain, Filter{Name: "eq", Options: []Option{
		opt("brightness", c.Brightness),
		opt("contrast", c.Contrast),
		opt("saturation", c.Saturation),
	}})
	return b
}

// FadeIn fades from black at t=0.
func (b *VideoBuilder) FadeIn(sec float64) *VideoBuilder {
	if sec = ClampFade(&sec); sec <= 0 {
		return b
	}
	b.chain = append(b.chain, Filter{Name: "fade", Options: []Option{
		{Key: "t", Value: "in"}, opt("st", 0), opt("d", sec),
	}})
	return b
}

// FadeOut fades to black starting at start on the output timeline.
func (b *VideoBuilder) FadeOut(start, sec float64) *VideoBuilder {
	if sec = ClampFade(&sec); sec <= 0 {
		return b
	}
	if !finite(start) || start < 0 {
		start = 0
	}
	b.chain = append(b.chain, Filter{Name: "fade", Options: []Option{
		{Key: "t", Value: "out"}, opt("st", start), opt("d", sec),
	}})
	return b
}

// Format forces a pixel format inside the graph.
func (b *VideoBuilder) Format(pixFmt string) *VideoBuilder {
	if pixFmt == "" {
		return b
	}
	b.chain = append(b.chain, Filter{Name: "format", Options: []Option{{Value: pixFmt}}})
	return b
}

// Build returns the assembled chain.
func (b *VideoBuilder) Build() Chain {
	return append(Chain(nil), b.chain...)
}

// AudioBuilder assembles an audio filter chain.
type AudioBuilder struct {
	chain Chain
}

// NewAudioBuilder creates an empty audio chain.
func NewAudioBuilder() *AudioBuilder {
	return &AudioBuilder{}
}

// Normalize resamples to 48kHz stereo float planar so every clip carries the
// same audio layout regardless of its source.
func (b *AudioBuilder) Normalize() *AudioBuilder {
	b.chain = append(b.chain, Filter{Name: "aformat", Options: []Option{
		{Key: "sample_fmts", Value: "fltp"},
		{Key: "sample_rates", Value: Num(SampleRate)},
		{Key: "channel_layouts", Value: ChannelLayout},
	}})
	return b
}

// ResetTimestamps rebases audio timestamps to zero.
func (b *AudioBuilder) ResetTimestamps() *AudioBuilder {
	b.chain = append(b.chain, Filter{Name: "asetpts", Options: []Option{{Value: "PTS-STARTPTS"}}})
	return b
}

// Tempo time-stretches by ratio using as many cascaded atempo stages as the
// per-stage range requires.
func (b *AudioBuilder) Tempo(ratio float64) *AudioBuilder {
	for _, stage := range TempoStages(ratio) {
		b.chain = append(b.chain, Filter{Name: "atempo", Options: []Option{{Value: Num(stage)}}})
	}
	return b
}

// FadeIn fades up from silence at t=0.
func (b *AudioBuilder) FadeIn(sec float64) *AudioBuilder {
	if sec = ClampFade(&sec); sec <= 0 {
		return b
	}
	b.chain = append(b.chain, Filter{Name: "afade", Options: []Option{
		{Key: "t", Value: "in"}, opt("st", 0), opt("d", sec),
	}})
	return b
}

// FadeOut fades down to silence starting at start.
func (b *AudioBuilder) FadeOut(start, sec float64) *AudioBuilder {
	if sec = ClampFade(&sec); sec <= 0 {
		return b
	}
	if !finite(start) || start < 0 {
		start = 0
	}
	b.chain = append(b.chain, Filter{Name: "afade", Options: []Option{
		{Key: "t", Value: "out"}, opt("st", start), opt("d", sec),
	}})
	return b
}

// Build returns the assembled chain.
func (b *AudioBuilder) Build() Chain {
	return append(Chain(nil), b.chain...)
}

// Silence is a 48kHz stereo silent source trimmed to exactly durationSec.
func Silence(durationSec float64) Chain {
	if !finite(durationSec) || durationSec < 0 {
		durationSec = 0
	}
	return Chain{
		{Name: "anullsrc", Options: []Option{
			{Key: "channel_layout", Value: ChannelLayout},
			{Key: "sample_rate", Value: Num(SampleRate)},
		}},
		{Name: "atrim", Options: []Option{opt("duration", durationSec)}},
	}
}

// MixWithBed mixes n inputs without volume normalisation, lasting as long as
// the longest input, so a silent bed pads short or near-silent sources.
func MixWithBed(inputs int) Chain {
	return Chain{{Name: "amix", Options: []Option{
		{Key: "inputs", Value: Num(float64(inputs))},
		{Key: "duration", Value: "longest"},
		{Key: "dropout_transition", Value: "0"},
		{Key: "normalize", Value: "0"},
	}}}
}
