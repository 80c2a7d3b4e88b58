// Package api is the local HTTP control surface of the clipper: planning,
// starting and steering runs, run history and a websocket progress stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rainyday01/video-cutter/internal/clipper"
	"github.com/rainyday01/video-cutter/internal/pipeline"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/supervisor"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Service    clipper.ClipService
	Events     *supervisor.Broadcaster
	Repository runs.Repository
	Doctor     *pipeline.CachedDoctor
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string

	// Defaults fill in quality and offsets a request leaves out.
	Quality plan.Quality
	Offsets plan.OffsetConfig
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
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
