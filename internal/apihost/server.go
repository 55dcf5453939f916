// Package apihost implements the thin HTTP query surface of
// SPEC_FULL.md §4.5: a gin engine exposing search, daily-summary,
// available-dates, and chart-aggregates over internal/query, plus a
// Prometheus /metrics endpoint. No authentication, sessions, or HTML
// rendering live here.
package apihost

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forensics/cgnatlog/internal/config"
	"github.com/forensics/cgnatlog/internal/query"
)

// Server is the Query API host.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server wired to eng, listening on cfg.API.Host:Port.
func New(cfg *config.Config, eng *query.Engine, logger *slog.Logger) *Server {
	if cfg == nil {
		panic("apihost.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(slogRequestLogger(logger))

	h := newHandler(eng, logger)
	registerRoutes(engine, h)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

// Addr reports the listen address the server was configured with.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine exposes the underlying gin engine, mainly for tests that want
// to drive requests with httptest without a real listener.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
