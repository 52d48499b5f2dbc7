// Package history keeps a ledger of stitch runs: what was asked, how far it
// got, and how it ended. The ledger is observational only; nothing is ever
// re-run from it.
package history

import "time"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one stitch request.
type Run struct {
	ID           string     `json:"id"`
	RequestID    string     `json:"request_id,omitempty"`
	Title        string     `json:"title,omitempty"`
	Filename     string     `json:"filename"`
	ClipCount    int        `json:"clip_count"`
	AudioEnabled bool       `json:"audio_enabled"`
	State        string     `json:"state"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	Message      string     `json:"message,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	Error        string     `json:"error,omitempty"`
	OutputBytes  int64      `json:"output_bytes"`
	DurationSec  float64    `json:"duration_sec"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Event is one progress report of a run.
type Event struct {
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
