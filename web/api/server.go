package api

import (
	"encoding/json"
	"net/http"

	"github.com/openevals/benchforge/internal/collect"
	"github.com/openevals/benchforge/internal/runstore"
)

// Store interface for run history queries
type Store interface {
	GetSummary() (*runstore.Summary, error)
	ListRuns(limit int) ([]*runstore.Run, error)
	GetRun(id string) (*runstore.Run, []runstore.Step, error)
}

// Server is the HTTP API server
type Server struct {
	store  Store
	addr   string
	mux    *http.ServeMux
	events *eventStream
}

// NewServer creates a new API server
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store:  store,
		addr:   addr,
		mux:    http.NewServeMux(),
		events: newEventStream(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/events", s.eventsHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// BroadcastStage pushes a pipeline stage transition to all SSE clients.
func (s *Server) BroadcastStage(ev collect.Event) {
	s.events.publish(ev)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
