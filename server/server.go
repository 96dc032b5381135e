// Copyright 2025 The etherealog Authors
// This file is part of the etherealog library.
//
// The etherealog library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherealog library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherealog library. If not, see <http://www.gnu.org/licenses/>.

// Package server exposes the tracing engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jts13/etherealog/engine"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var errBusy = errors.New("server busy, try again later")

// Server is the HTTP front end of the engine. Every request executes on a
// fresh engine, so requests never share state.
type Server struct {
	cfg     Config
	evm     engine.Config
	log     log.Logger
	handler http.Handler

	store    *traceStore
	sem      *semaphore.Weighted
	inflight atomic.Int64
	metrics  *serverMetrics

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener // non-nil when server is running
	errc     chan error   // result of Serve
}

// New creates a server. The engine configuration is validated up front so
// that a bad fork name fails at startup rather than on the first request.
func New(cfg Config, evm engine.Config) (*Server, error) {
	cfg.sanitize()
	if _, err := engine.New(&evm, nil); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		evm:     evm,
		log:     log.New("module", "server"),
		store:   newTraceStore(cfg.TraceCache),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		metrics: newServerMetrics(),
	}
	var secret []byte
	if cfg.JWTSecret != "" {
		var err error
		if secret, err = obtainJWTSecret(cfg.JWTSecret); err != nil {
			return nil, err
		}
	}
	resources, err := s.resources()
	if err != nil {
		return nil, err
	}
	s.handler = s.routes(secret, resources)
	return s, nil
}

func (s *Server) routes(secret []byte, resources http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests(s.log))
	r.Use(s.metrics.instrument)
	r.Use(func(next http.Handler) http.Handler {
		return newVHostHandler(s.cfg.VirtualHosts, next)
	})
	r.Use(func(next http.Handler) http.Handler {
		return newCorsHandler(next, s.cfg.CorsAllowedOrigins)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	})

	r.Route("/api/isolate", func(r chi.Router) {
		if secret != nil {
			r.Use(func(next http.Handler) http.Handler { return newJWTHandler(secret, next) })
		}
		if s.cfg.RateLimit > 0 {
			limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
			r.Use(func(next http.Handler) http.Handler { return newRateLimitHandler(limiter, s.metrics, next) })
		}
		r.Use(func(next http.Handler) http.Handler { return newBodyLimitHandler(s.cfg.MaxBodySize, next) })

		// The websocket route stays outside of the compressing group, the
		// upgrade needs the raw connection.
		r.Get("/stream", s.handleStream)
		r.Group(func(r chi.Router) {
			r.Use(compress)
			r.Post("/eval/{code}", s.handle(s.handleEval))
			r.Post("/transaction", s.handle(s.handleTransaction))
			r.Get("/traces/{id}", s.handle(s.handleTrace))
		})
	})

	r.Get("/health", s.handle(s.handleHealth))
	r.Get("/version", s.handle(s.handleVersion))
	if s.cfg.Metrics {
		r.Handle("/metrics", s.metrics.handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(compress)
		r.Handle("/res/*", http.StripPrefix("/res/", resources))
		r.Get("/swagger-ui", http.RedirectHandler("/swagger-ui/", http.StatusMovedPermanently).ServeHTTP)
		r.Get("/swagger-ui/", serveSwaggerUI)
		r.Get("/rapidoc", http.RedirectHandler("/rapidoc/", http.StatusMovedPermanently).ServeHTTP)
		r.Get("/rapidoc/", serveRapiDoc)
	})
	return r
}

// compress gzips responses for clients accepting it.
func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving on the configured endpoint.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Endpoint())
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Timeouts.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout,
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout,
	}
	s.listener = listener
	s.errc = make(chan error, 1)
	go func(srv *http.Server, errc chan<- error) {
		errc <- srv.Serve(listener)
	}(s.server, s.errc)

	s.log.Info("HTTP server started", "endpoint", fmt.Sprintf("http://%v/", listener.Addr()),
		"cors", s.cfg.CorsAllowedOrigins, "vhosts", s.cfg.VirtualHosts, "fork", s.evm.Fork)
	return nil
}

// Addr returns the listening address, or nil when the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down, waiting for running requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server, s.listener = nil, nil
	s.log.Info("HTTP server stopped")
	return err
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	errc := s.errc
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdown)
	})
	return g.Wait()
}

func (s *Server) acquire(ctx context.Context) error {
	wait, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancel()
	if err := s.sem.Acquire(wait, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.metrics.rejected.WithLabelValues("busy").Inc()
		return errBusy
	}
	s.inflight.Add(1)
	s.metrics.inflight.Inc()
	return nil
}

func (s *Server) release() {
	s.inflight.Add(-1)
	s.metrics.inflight.Dec()
	s.sem.Release(1)
}
