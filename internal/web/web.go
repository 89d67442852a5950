// Package web serves the daemon-mode status endpoints: a health check
// and a JSON view of the most recent synchronization run.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"shiftsync/internal/caldav"
	"shiftsync/internal/config"
	appLog "shiftsync/internal/log"
)

// Status is the /api/status payload.
type Status struct {
	// LastRunAt is when the last sync attempt started; zero until the
	// first run completes or fails.
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	// Extracted is the number of shifts extracted in the last run.
	Extracted int `json:"extracted"`
	// Report carries the per-event sync outcome, when sync was reached.
	Report *caldav.Report `json:"report,omitempty"`
	// Error is set when the run failed before or during sync.
	Error string `json:"error,omitempty"`
}

// Server exposes the status endpoints for daemon mode.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	mu     sync.RWMutex
	status Status
}

// NewServer constructs a Server bound to cfg.
func NewServer(cfg *config.Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	return s
}

// Record stores the outcome of a sync run for /api/status.
func (s *Server) Record(extracted int, report *caldav.Report, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{
		LastRunAt: time.Now(),
		Extracted: extracted,
		Report:    report,
	}
	if runErr != nil {
		s.status.Error = runErr.Error()
	}
}

// Handler returns the server's http.Handler, wrapped with basic auth
// when configured. /health always bypasses auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("status server basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="shift-sync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		appLog.Error("status encode failed", err)
	}
}
