// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes document submission, job status and question
// answering over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/pdiddy/claimgraph/internal/jobs"
	"github.com/pdiddy/claimgraph/internal/logging"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Pipeline is the ingestion side: submission, resubmission and status.
type Pipeline interface {
	Submit(ctx context.Context, filename string, data []byte) (jobs.Submission, error)
	Resubmit(ctx context.Context, docID string) (types.Job, error)
	Status(ctx context.Context, docID string) (types.Job, error)
	Document(ctx context.Context, docID string) (types.Document, error)
	Documents(ctx context.Context) ([]types.Document, error)
}

// Answerer answers questions from the knowledge graph.
type Answerer interface {
	Answer(ctx context.Context, q types.Question) (types.Answer, error)
}

// Rescanner rebuilds contradiction edges over the whole graph.
type Rescanner interface {
	Rescan(ctx context.Context) ([]types.ContradictionEdge, error)
}

// Server routes the HTTP API.
type Server struct {
	router    *chi.Mux
	pipeline  Pipeline
	answers   Answerer
	rescanner Rescanner
	limiter   *rate.Limiter
	maxUpload int64
	addr      string
	log       *logging.Logger
}

// New builds the router. Document submissions and resubmissions share one
// token bucket of cfg.SubmitRate per second with burst cfg.SubmitBurst.
func New(p Pipeline, a Answerer, r Rescanner, cfg types.ServerConfig, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	def := types.DefaultConfig().Server
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.SubmitRate <= 0 {
		cfg.SubmitRate = def.SubmitRate
	}
	if cfg.SubmitBurst <= 0 {
		cfg.SubmitBurst = def.SubmitBurst
	}

	s := &Server{
		router:    chi.NewRouter(),
		pipeline:  p,
		answers:   a,
		rescanner: r,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst),
		maxUpload: cfg.MaxUploadBytes,
		addr:      cfg.Addr,
		log:       log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.With(s.admit).Post("/", s.handleSubmit)
			r.Get("/", s.handleListDocuments)
			r.Get("/{id}", s.handleGetDocument)
			r.Get("/{id}/job", s.handleGetJob)
			r.With(s.admit).Post("/{id}/resubmit", s.handleResubmit)
		})
		r.Post("/ask", s.handleAsk)
		r.Post("/maintenance/rescan", s.handleRescan)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// admit rejects requests beyond the submission rate with 429.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "submission rate exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.log.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
