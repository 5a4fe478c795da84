package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/schaermu/nfswatch/internal/poller"
)

// Report is the JSON body served at /status
type Report struct {
	Root           string    `json:"root"`
	Mode           string    `json:"mode"`
	Cycles         int       `json:"cycles"`
	LastCycleID    string    `json:"last_cycle_id,omitempty"`
	LastCycleAt    time.Time `json:"last_cycle_at,omitempty"`
	LastDelta      int       `json:"last_delta"`
	LastEventCount int       `json:"last_event_count"`
	LastSnapshot   string    `json:"last_snapshot,omitempty"`
	RootReachable  bool      `json:"root_reachable"`
	Entries        int       `json:"entries"`
	LastError      string    `json:"last_error,omitempty"`
}

// Server exposes the watcher's state over HTTP
type Server struct {
	logger *slog.Logger

	mu     sync.RWMutex
	report Report
}

// NewServer creates a status server for the given root
func NewServer(root string, logger *slog.Logger) *Server {
	return &Server{
		logger: logger,
		report: Report{Root: root, Mode: poller.ModeNormal.String()},
	}
}

// ObserveCycle records the outcome of a poll cycle.
func (s *Server) ObserveCycle(result poller.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.report.Cycles++
	s.report.LastCycleID = result.ID
	s.report.LastCycleAt = result.StartedAt
	s.report.Mode = result.Mode.String()
	s.report.RootReachable = !result.Skipped

	if result.Skipped {
		if result.Err != nil {
			s.report.LastError = result.Err.Error()
		}
		return
	}

	s.report.LastError = ""
	s.report.Entries = result.Entries
	s.report.LastDelta = result.Delta
	s.report.LastEventCount = len(result.Events)
	if result.SnapshotFile != "" {
		s.report.LastSnapshot = result.SnapshotFile
	}
}

// Snapshot returns a copy of the current report
func (s *Server) Snapshot() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Handler returns the HTTP handler serving /healthz and /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Serve runs the HTTP server on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", "addr", l.Addr().String())
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		s.logger.Error("failed to encode status", "error", err)
	}
}
