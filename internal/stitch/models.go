// Package stitch turns an ordered list of remote clips plus edit directives
// into one normalized MP4.
//
// A request moves through fetch, probe+normalize and concat strictly in
// order inside its own scratch workspace. The workspace is removed when the
// returned Artifact is closed, or immediately when any stage fails.
package stitch

import (
	"github.com/storyreel/stitcher/internal/filtergraph"
)

// ClipSpec is one source clip and its edit directives. Absent fields take
// their defaults: full duration, normal speed, no fades.
type ClipSpec struct {
	URL          string   `json:"url"`
	TrimStartSec *float64 `json:"trimStartSec,omitempty"`
	TrimEndSec   *float64 `json:"trimEndSec,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	FadeInSec    *float64 `json:"fadeInSec,omitempty"`
	FadeOutSec   *float64 `json:"fadeOutSec,omitempty"`
}

type AudioOptions struct {
	Enabled bool `json:"enabled"`
}

// PostOptions is the global colour adjustment. Absent components are neutral.
type PostOptions struct {
	Brightness *float64 `json:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
}

// Color resolves the options into a clamped colour adjustment.
func (p PostOptions) Color() filtergraph.Color {
	c := filtergraph.NeutralColor()
	if p.Brightness != nil {
		c.Brightness = *p.Brightness
	}
	if p.Contrast != nil {
		c.Contrast = *p.Contrast
	}
	if p.Saturation != nil {
		c.Saturation = *p.Saturation
	}
	return c.Clamp()
}

// StitchRequest is the full input of one stitch operation.
type StitchRequest struct {
	Clips []ClipSpec   `json:"clips"`
	Audio AudioOptions `json:"audio"`
	Post  PostOptions  `json:"post"`
	Title string       `json:"title,omitempty"`
}

// State is a step of the per-request state machine.
type State string

const (
	StateIdle                  State = "idle"
	StateFetchingClips         State = "fetching_clips"
	StateProbingAndNormalizing State = "probing_and_normalizing"
	StateConcatenating         State = "concatenating"
	StateStreaming             State = "streaming"
	StateDone                  State = "done"
	StateFailed                State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Progress is one progress event: a percentage in [0,100] and a phase label.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Hooks observe a single stitch. Either func may be nil.
type Hooks struct {
	OnProgress func(Progress)
	OnState    func(State)
}

func (h Hooks) progress(percent int, message string) {
	if h.OnProgress == nil {
		return
	}
	percent = max(0, min(100, percent))
	h.OnProgress(Progress{Percent: percent, Message: message})
}
