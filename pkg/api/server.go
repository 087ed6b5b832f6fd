// Package api exposes the HTTP search API: aggregated search in several
// output formats, engine introspection, health statistics, and a WebSocket
// stream of per-engine outcomes while a search runs.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/dispatch"
	"github.com/metisearch/metis/pkg/log"
	"github.com/metisearch/metis/pkg/storage"
)

var logger = log.For("api")

type Server struct {
	registry   *core.Registry
	dispatcher *dispatch.Dispatcher
	history    *storage.History
}

// NewServer wires the API handlers. history may be nil when the server runs
// without persistence; the stats endpoint then reports empty data.
func NewServer(registry *core.Registry, dispatcher *dispatch.Dispatcher, history *storage.History) *Server {
	return &Server{
		registry:   registry,
		dispatcher: dispatcher,
		history:    history,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/engines", s.HandleEngines)
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("GET /api/stream", s.HandleStream)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
