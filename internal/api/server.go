package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/storyreel/stitcher/internal/engine"
	"github.com/storyreel/stitcher/internal/history"
	"github.com/storyreel/stitcher/internal/stitch"
)

// Stitcher runs one stitch request to a finished artifact.
type Stitcher interface {
	Stitch(ctx context.Context, req *stitch.StitchRequest, policy *stitch.OriginPolicy, hooks stitch.Hooks) (*stitch.Artifact, error)
}

// EngineDoctor reports codec engine availability.
type EngineDoctor interface {
	Get(ctx context.Context) (*engine.Capabilities, error)
	Peek() *engine.Capabilities
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	BindAddr       string
	Port           int
	Stitcher       Stitcher
	Policy         *stitch.OriginPolicy
	History        history.Repository
	Doctor         EngineDoctor
	DB             Pinger
	APIToken       string
	AllowedOrigins []string
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	bind := cfg.BindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(bind, fmt.Sprint(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Stitches stream large files after minutes of work.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
