package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a minimal standalone /metrics listener for a single
// long-running binary. Prometheus scrapes one target per process, and
// Registry is itself process-local memory, so the receiver and
// processor binaries each run their own Server rather than relying on
// the queryhost's apihost.Server to somehow see counters updated in a
// different OS process.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server exposing Registry on host:port.
func NewServer(host string, port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Addr reports the listen address the server was configured with.
func (s *Server) Addr() string { return s.httpServer.Addr }

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
