// Package server exposes registered entity types as JSON resource endpoints:
// list endpoints driven by the query resolver, and create/update flows that
// write nested payloads through the persistence engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fennec-api/fennec/internal/config"
	"github.com/fennec-api/fennec/internal/orm"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Server serves the resource API for one ORM instance.
type Server struct {
	orm    *orm.ORM
	logger *zap.Logger
	router chi.Router
	http   *http.Server
	prefix string
}

// New creates a server over the ORM with production timeouts.
func New(o *orm.ORM, logger *zap.Logger, cfg config.ServerConfig) *Server {
	s := &Server{
		orm:    o,
		logger: logger,
		router: chi.NewRouter(),
		prefix: cfg.APIPrefix,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)

	s.http = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return s
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Server) Router() http.Handler { return s.router }

// MountAll registers resource routes for every entity type in the registry.
func (s *Server) MountAll() {
	for _, name := range s.orm.Registry().TypeNames() {
		s.Resource(name)
	}
}

// Start runs the server until an interrupt signal arrives, then shuts down
// gracefully.
func (s *Server) Start() error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		s.logger.Info("shutdown signal received")
		return s.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests before closing the listener.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// requestLogger logs each request with its status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// recoverer converts handler panics into 500 envelopes.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panicked", zap.Any("panic", p), zap.String("path", r.URL.Path))
				respond(w, http.StatusInternalServerError, "internal server error", nil, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
