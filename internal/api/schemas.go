package api

import (
	"time"

	"github.com/storyreel/stitcher/internal/history"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Diagnostic string `json:"diagnostic,omitempty"`
	RunID      string `json:"run_id,omitempty"`
}

type HealthResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	UptimeS int64           `json:"uptime_s"`
	Engine  *EngineResponse `json:"engine,omitempty"`
	DB      string          `json:"db,omitempty"`
}

type EngineResponse struct {
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type RunResponse struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id,omitempty"`
	Title        string          `json:"title,omitempty"`
	Filename     string          `json:"filename"`
	ClipCount    int             `json:"clip_count"`
	AudioEnabled bool            `json:"audio_enabled"`
	State        string          `json:"state"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	Message      string          `json:"message,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	Error        string          `json:"error,omitempty"`
	OutputBytes  int64           `json:"output_bytes"`
	DurationSec  float64         `json:"duration_sec"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	FinishedAt   string          `json:"finished_at,omitempty"`
	Events       []EventResponse `json:"events,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type EventResponse struct {
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func RunToResponse(r *history.Run) RunResponse {
	resp := RunResponse{
		ID:           r.ID,
		RequestID:    r.RequestID,
		Title:        r.Title,
		Filename:     r.Filename,
		ClipCount:    r.ClipCount,
		AudioEnabled: r.AudioEnabled,
		State:        r.State,
		Status:       r.Status,
		Progress:     r.Progress,
		Message:      r.Message,
		ErrorKind:    r.ErrorKind,
		Error:        r.Error,
		OutputBytes:  r.OutputBytes,
		DurationSec:  r.DurationSec,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func EventToResponse(e *history.Event) EventResponse {
	return EventResponse{
		Percent:   e.Percent,
		Message:   e.Message,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
