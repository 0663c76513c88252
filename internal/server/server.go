// Package server exposes the memory engine over a small HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/engine"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/index"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

// Server is the essence HTTP API server.
type Server struct {
	store   *store.Store
	index   *index.Index
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over the given store, index, and engine.
func New(st *store.Store, idx *index.Index, eng *engine.Engine, version string) *Server {
	s := &Server{
		store:   st,
		index:   idx,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/nodes", s.handleListNodes)
		r.Post("/nodes", s.handleEncode)
		r.Post("/gc", s.handleGC)
		r.Get("/search", s.handleSearch)
		r.Get("/context", s.handleContext)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	idxOK := true
	if _, err := s.index.GetStatus(); err != nil {
		idxOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"store":   s.store.Root(),
		"index":   idxOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
