package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/storyreel/stitcher/internal/history"
	"github.com/storyreel/stitcher/internal/logging"
	"github.com/storyreel/stitcher/internal/stitch"
)

const maxRequestBody = 1 << 20

// busyRetryAfter is the Retry-After hint, in seconds, sent with BUSY.
const busyRetryAfter = 30

var errClientGone = &stitch.Error{Kind: stitch.KindInternal, Message: "client disconnected mid-stream"}

type kindResponse struct {
	status int
	code   string
}

var kindResponses = map[stitch.Kind]kindResponse{
	stitch.KindValidation:        {http.StatusBadRequest, "VALIDATION_ERROR"},
	stitch.KindBusy:              {http.StatusServiceUnavailable, "BUSY"},
	stitch.KindEngineUnavailable: {http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE"},
	stitch.KindDownload:          {http.StatusBadGateway, "DOWNLOAD_FAILED"},
	stitch.KindProbe:             {http.StatusUnprocessableEntity, "PROBE_FAILED"},
	stitch.KindNormalize:         {http.StatusInternalServerError, "NORMALIZE_FAILED"},
	stitch.KindConcat:            {http.StatusInternalServerError, "CONCAT_FAILED"},
	stitch.KindInternal:          {http.StatusInternalServerError, "INTERNAL_ERROR"},
}

func stitchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.WithRequestID(cfg.Logger, RequestID(ctx))

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req stitch.StitchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")
			return
		}

		runID := uuid.NewString()
		logger = logging.WithRunID(logger, runID)
		filename := stitch.OutputFilename(req.Title)

		var tracker *history.Tracker
		if cfg.History != nil {
			t, err := history.Start(ctx, cfg.History, &history.Run{
				ID:           runID,
				RequestID:    RequestID(ctx),
				Title:        req.Title,
				Filename:     filename,
				ClipCount:    len(req.Clips),
				AudioEnabled: req.Audio.Enabled,
			}, logger)
			if err != nil {
				logger.Warn("failed to record run", "error", err)
			} else {
				tracker = t
			}
		}

		logger.Info("stitch requested", "clips", len(req.Clips), "audio", req.Audio.Enabled)

		art, err := cfg.Stitcher.Stitch(ctx, &req, cfg.Policy, tracker.Hooks())
		if err != nil {
			tracker.Fail(err)
			writeStitchError(w, err, runID)
			logger.Warn("stitch failed", "kind", stitch.KindOf(err), "error", err)
			return
		}
		defer func() {
			if cerr := art.Close(); cerr != nil {
				logger.Warn("failed to remove workspace", "error", cerr)
			}
		}()

		h := w.Header()
		h.Set("Content-Type", "video/mp4")
		h.Set("Content-Length", strconv.FormatInt(art.Size, 10))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
		h.Set("Cache-Control", "no-store")
		h.Set("X-Stitch-Run-ID", runID)
		w.WriteHeader(http.StatusOK)

		n, err := art.WriteTo(w)
		if err != nil {
			tracker.Fail(errClientGone)
			logger.Warn("stream interrupted", "bytes", n, "size", art.Size, "error", err)
			return
		}
		tracker.Succeed(n, art.DurationSec)
		logger.Info("stitch streamed", "bytes", n, "duration_sec", art.DurationSec)
	}
}

func writeStitchError(w http.ResponseWriter, err error, runID string) {
	kind := stitch.KindOf(err)
	resp, ok := kindResponses[kind]
	if !ok {
		resp = kindResponses[stitch.KindInternal]
	}

	body := ErrorResponse{Error: "stitch failed", Code: resp.code, RunID: runID}
	var se *stitch.Error
	if errors.As(err, &se) {
		body.Error = se.Message
		body.Diagnostic = se.Diagnostic
	}
	if kind == stitch.KindBusy {
		w.Header().Set("Retry-After", strconv.Itoa(busyRetryAfter))
	}
	WriteJSON(w, resp.status, body)
}
