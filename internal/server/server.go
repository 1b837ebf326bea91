//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package server provides the HTTP server for the librarian API.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
	"github.com/pgEdge/pgedge-librarian-server/internal/illustration"
	"github.com/pgEdge/pgedge-librarian-server/internal/pipeline"
	"github.com/pgEdge/pgedge-librarian-server/internal/speech"
)

// Service is the pipeline surface exposed over HTTP.
type Service interface {
	Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error)
	Search(ctx context.Context, req pipeline.SearchRequest) (*pipeline.SearchResponse, error)
	Illustrate(ctx context.Context, req pipeline.IllustrateRequest) (*illustration.Result, error)
	SpeechToken(ctx context.Context) (speech.Token, error)
	Close() error
}

var _ Service = (*pipeline.Manager)(nil)

// Server is the HTTP server for the librarian API.
type Server struct {
	config  *config.Config
	service Service
	logger  *zap.Logger
	server  *http.Server
	mux     *http.ServeMux
}

// New creates a new HTTP server.
func New(cfg *config.Config, svc Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  cfg,
		service: svc,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	// Set up routes
	s.setupRoutes()

	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.ListenAddress, s.config.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // Two chat turns plus two image attempts
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting server",
		zap.String("address", addr),
		zap.Bool("tls", s.config.Server.TLS.Enabled))

	if s.config.Server.TLS.Enabled {
		return s.serveTLS()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return s.server.Serve(listener)
}

// serveTLS starts the server with TLS.
func (s *Server) serveTLS() error {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	s.server.TLSConfig = tlsCfg

	return s.server.ListenAndServeTLS(
		s.config.Server.TLS.CertFile,
		s.config.Server.TLS.KeyFile,
	)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}

	return nil
}

// Addr returns the server's address. Returns empty string if not started.
func (s *Server) Addr() string {
	if s.server != nil {
		return s.server.Addr
	}
	return ""
}
