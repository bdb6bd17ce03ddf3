/*
PURPOSE:
  HTTP frontend. Serves /psi and answers every other path with "Hello World".

REQUIREMENTS:
  User-specified:
  - /psi: url required, strategy default mobile, key optional, full returns the raw report.
  - Every /psi answer is HTTP 200; failures are code 1 envelopes.
  - Any other route: 200 text/plain "Hello World\n", including unclean paths like /a//b.
  - Per-request failures never take the process down.

  Implementation-discovered:
  - Graceful shutdown on context cancel (SIGINT/SIGTERM from the CLI).
  - Optional CORS and a separate Prometheus listener.
  - The upstream call is not cancelled when the client goes away.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (serve)
  - Uses: internal/engine, internal/output, internal/metrics

ERROR HANDLING:
  - engine.Describe maps errors to envelopes.
  - Panics are recovered by middleware and logged.

IMPLEMENTATION RULES:
  - No state shared between requests besides metrics.

USAGE:
  srv := server.New(cfg, runner, logger, m)
  err := srv.Run(ctx)

RELATED FILES:
  - internal/server/middleware.go
  - internal/engine/runner.go
*/

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/daryltucker/psi-proxy/internal/config"
	"github.com/daryltucker/psi-proxy/internal/engine"
	"github.com/daryltucker/psi-proxy/internal/metrics"
	"github.com/daryltucker/psi-proxy/internal/model"
	"github.com/daryltucker/psi-proxy/internal/output"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Route names, also used as metric labels.
const (
	RoutePSI      = "psi"
	RouteFallback = "fallback"
)

// HelloWorld is the body served on every path other than /psi.
const HelloWorld = "Hello World\n"

// Auditor runs one audit request.
type Auditor interface {
	Audit(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Server is the HTTP frontend.
type Server struct {
	cfg     *config.Config
	auditor Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a new Server. logger and m may be nil.
func New(cfg *config.Config, a Auditor, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = output.Logger
	}
	return &Server{cfg: cfg, auditor: a, logger: logger, metrics: m}
}

// Handler returns the routed and wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	// Unclean paths go to the fallback instead of a 301.
	r := mux.NewRouter().SkipClean(true)
	r.HandleFunc("/psi", s.handlePSI).Name(RoutePSI)
	r.PathPrefix("/").HandlerFunc(s.handleFallback).Name(RouteFallback)
	r.Use(
		withRequestID(),
		withAccessLog(s.logger),
		withRecovery(s.logger, s.metrics),
	)

	var h http.Handler = r
	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
			ExposedHeaders: []string{RequestIDHeader},
		}).Handler(h)
	}
	return h
}

func (s *Server) handlePSI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := engine.Request{
		URL:      q.Get("url"),
		Strategy: q.Get("strategy"),
		Key:      q.Get("key"),
		Full:     q.Get("full") != "",
	}
	s.logger.Debug("PSI request",
		"url", req.URL,
		"strategy", req.Strategy,
		"full", req.Full,
		"request_id", RequestID(r.Context()),
	)

	// Client disconnects do not cancel the audit.
	res, err := s.auditor.Audit(context.WithoutCancel(r.Context()), req)
	if err != nil {
		msg, detail := engine.Describe(err)
		if detail != nil && detail.Kind == model.KindInternal {
			s.logger.Error("Audit failed", "error", err, "request_id", RequestID(r.Context()))
		}
		s.metrics.ObserveRequest(RoutePSI, metrics.OutcomeError)
		s.write(output.WriteFailure(w, msg, detail))
		return
	}

	s.metrics.ObserveRequest(RoutePSI, metrics.OutcomeOK)
	s.write(output.WriteSuccess(w, res.Payload()))
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	s.metrics.ObserveRequest(RouteFallback, metrics.OutcomeOK)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(w, HelloWorld)
	s.write(err)
}

func (s *Server) write(err error) {
	if err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// Run listens on cfg.ListenAddr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// The metrics listener, if configured, shares the same lifetime.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	servers := []*http.Server{{Handler: s.Handler()}}
	listeners := []net.Listener{ln}

	if s.cfg.MetricsAddr != "" && s.metrics != nil {
		mln, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			ln.Close()
			return err
		}
		mmux := http.NewServeMux()
		mmux.Handle("/metrics", s.metrics.Handler())
		servers = append(servers, &http.Server{Handler: mmux})
		listeners = append(listeners, mln)
		s.logger.Info("Metrics listening", "addr", mln.Addr().String())
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, listeners[i])
	}
	s.logger.Info("Server running", "addr", "http://"+ln.Addr().String()+"/")

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("Shutting down")
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
