package health

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"
)

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusFunc returns the payload served by /statusz.
type StatusFunc func() any

// Server provides HTTP health check endpoints for a running xray session.
type Server struct {
	store   Pinger
	backend string
	status  StatusFunc
	server  *http.Server
	addr    string
}

// NewServer creates a health server listening on addr. backend names the
// store in responses ("redis" or "sqlite"). status may be nil.
func NewServer(addr string, store Pinger, backend string, status StatusFunc) *Server {
	return &Server{
		store:   store,
		backend: backend,
		status:  status,
		addr:    addr,
	}
}

// Handler returns the mux serving /healthz and /statusz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	mux.HandleFunc("/statusz", s.statusHandler)
	return mux
}

// Start binds the listener and serves in the background. Returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[Health] Server error: %v", err)
		}
	}()

	log.Printf("[Health] Listening on %s", listener.Addr())
	return listener.Addr().String(), nil
}

// Shutdown gracefully shuts down the health check server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the store is reachable, 503 Service Unavailable otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := Response{
		Status:  "healthy",
		Backend: s.backend,
		Store:   "connected",
	}
	code := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, response)
}

// statusHandler handles GET /statusz requests with the session counters.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Health] Failed to write response: %v", err)
	}
}

// Response is the JSON response structure for health checks.
type Response struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
	Store   string `json:"store,omitempty"`
	Error   string `json:"error,omitempty"`
}
