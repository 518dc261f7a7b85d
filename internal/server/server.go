package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/affinity/internal/engine"
)

// Backend is the storage the engine persists to, as seen by the API.
type Backend interface {
	Healthy(ctx context.Context) error
}

// Server is the affinity HTTP API server.
type Server struct {
	engine  *engine.Engine
	backend Backend
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over eng. backend is used for health checks, listing
// and the update log; it is normally the same store eng writes to.
func New(eng *engine.Engine, backend Backend, version string) *Server {
	s := &Server{
		engine:  eng,
		backend: backend,
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
		r.Get("/archetypes", s.handleArchetypes)
		r.Post("/flush", s.handleFlush)
		r.Get("/relationships", s.handleListRelationships)

		r.Route("/relationships/{userID}/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.handleDelete)
			r.Post("/init", s.handleInit)
			r.Post("/update", s.handleUpdate)
			r.Post("/agent-message", s.handleAgentMessage)
			r.Post("/outreach", s.handleOutreach)
			r.Post("/resistance", s.handleResistance)
			r.Post("/save", s.handleSave)
			r.Get("/filter", s.handleFilter)
			r.Get("/tone", s.handleTone)
			r.Get("/passive-aggressive", s.handlePassiveAggressive)
			r.Get("/category", s.handleCategory)
			r.Get("/summary", s.handleSummary)
			r.Get("/temporal", s.handleTemporal)
			r.Get("/updates", s.handleUpdates)
			r.Get("/snapshot", s.handleSnapshot)
			r.Put("/snapshot", s.handleRestore)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := true
	if s.backend != nil {
		if err := s.backend.Healthy(r.Context()); err != nil {
			storeOK = false
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"store":   storeOK,
		"engine":  s.engine.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
