package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aos-sim/aos/internal/events"
)

// DefaultAddr is where the bundled visualizer expects the feed.
const DefaultAddr = "localhost:8765"

// Server is the visualizer HTTP server: a health endpoint and the
// WebSocket feed.
type Server struct {
	httpServer *http.Server
	hub        *Hub
}

// NewServer builds a server on addr, bridging bus events to connected
// visualizers.
func NewServer(bus *events.Bus, snapshot SnapshotFunc, addr string) *Server {
	hub := NewHub(bus, snapshot)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	s := &Server{hub: hub}
	r.Get("/health", s.handleHealth)
	r.Get("/", hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("visualizer listen: %w", err)
	}
	slog.Info("visualizer feed listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
