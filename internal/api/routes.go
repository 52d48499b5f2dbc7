package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxListLimit = 200

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins))

	r.Get("/health", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIToken, cfg.Logger))

		r.Post("/stitch", stitchHandler(cfg))
		if cfg.History != nil {
			r.Get("/stitches", listRunsHandler(cfg))
			r.Get("/stitches/{id}", getRunHandler(cfg))
		}
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}

		if cfg.Doctor != nil {
			// Report the cached check; run one only when nothing has succeeded yet.
			caps := cfg.Doctor.Peek()
			if caps == nil {
				caps, _ = cfg.Doctor.Get(ctx)
			}
			engineResp := &EngineResponse{}
			if caps != nil {
				engineResp.Available = caps.Available
				engineResp.Version = caps.Version
				engineResp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
			}
			if !engineResp.Available {
				resp.Status = "degraded"
			}
			resp.Engine = engineResp
		}

		if cfg.DB != nil {
			resp.DB = "ok"
			if err := cfg.DB.Ping(ctx); err != nil {
				cfg.Logger.Warn("database ping failed", "error", err)
				resp.DB = "unavailable"
				resp.Status = "degraded"
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(v, maxListLimit)
		}

		runs, err := cfg.History.ListRuns(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error("failed to list runs", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list stitches", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "stitch id required", "BAD_REQUEST")
			return
		}

		run, err := cfg.History.GetRun(r.Context(), id)
		if err != nil {
			cfg.Logger.Error("failed to get run", "error", err, "run_id", id)
			WriteError(w, http.StatusInternalServerError, "failed to get stitch", "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "stitch not found", "NOT_FOUND")
			return
		}

		resp := RunToResponse(run)
		events, err := cfg.History.ListEvents(r.Context(), id)
		if err != nil {
			cfg.Logger.Warn("failed to list run events", "error", err, "run_id", id)
		}
		for _, e := range events {
			resp.Events = append(resp.Events, EventToResponse(e))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
