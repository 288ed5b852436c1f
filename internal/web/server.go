// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package web exposes the credential operations over HTTP with chi.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/samber/oops"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 64 << 10

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit    int
	MaxBodyBytes int64

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// Server serves the credential API.
type Server struct {
	cfg        Config
	router     chi.Router
	listener   net.Listener
	tlsConfig  *tls.Config
	httpServer *http.Server
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer builds the router. Recorder and logger may be nil.
func NewServer(cfg Config, svc CredentialService, recorder Recorder, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("credential service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	tlsConfig, err := loadTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, logger: logger, tlsConfig: tlsConfig}
	s.router = s.routes(&api{svc: svc, validator: v, recorder: recorder, logger: logger})
	return s, nil
}

func (s *Server) routes(a *api) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimw.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}
	r.Use(chimw.RequestSize(s.cfg.MaxBodyBytes))

	r.Get("/", a.root)
	r.Post("/"+OpRegister, endpoint(a, OpRegister, a.register))
	r.Post("/"+OpConfirmEmail, endpoint(a, OpConfirmEmail, a.confirmEmail))
	r.Post("/"+OpResetPassword, endpoint(a, OpResetPassword, a.resetPassword))
	r.Post("/"+OpSetNewPassword, endpoint(a, OpSetNewPassword, a.setNewPassword))
	r.Post("/"+OpUpdatePassword, endpoint(a, OpUpdatePassword, a.updatePassword))
	r.Post("/"+OpLogin, endpoint(a, OpLogin, a.login))
	r.Post("/"+OpLogout, endpoint(a, OpLogout, a.logout))
	r.Post("/"+OpVerifySession, endpoint(a, OpVerifySession, a.verifySession))
	r.Post("/"+OpResendConfirmation, endpoint(a, OpResendConfirmation, a.resendConfirmation))

	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on cfg.Addr and serves in the background. The returned
// channel receives a serve failure, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String(), "tls", s.tlsConfig != nil)
	return errCh, nil
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
