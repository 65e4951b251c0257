package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"firewatch/internal/logger"
	"firewatch/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// Source is the read side of the session controller
type Source interface {
	Snapshot(ctx context.Context) (models.SessionSnapshot, error)
	Alerts(ctx context.Context) ([]models.AlertLogEntry, error)
	Timeline(ctx context.Context) (models.TimelineSummary, error)
	OverlayPNG(ctx context.Context) ([]byte, error)
}

// Server is a read-only HTTP view of the session
type Server struct {
	source  Source
	metrics http.Handler
	srv     *http.Server
}

func NewServer(addr string, source Source, metrics http.Handler) *Server {
	s := &Server{source: source, metrics: metrics}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/session", s.handleSession).Methods("GET")
	r.HandleFunc("/api/alerts", s.handleAlerts).Methods("GET")
	r.HandleFunc("/api/alerts/{id}", s.handleAlert).Methods("GET")
	r.HandleFunc("/api/timeline", s.handleTimeline).Methods("GET")
	r.HandleFunc("/overlay.png", s.handleOverlay).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}
	return r
}

// Start serves until Shutdown
func (s *Server) Start() {
	logger.Infof("Status server listening on %s", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Status server failed: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("Failed to write response: %v", err)
	}
}

func unavailable(w http.ResponseWriter, err error) {
	logger.Debugf("Status request failed: %v", err)
	http.Error(w, "session unavailable", http.StatusServiceUnavailable)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.Snapshot(r.Context())
	if err != nil {
		unavailable(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.source.Alerts(r.Context())
	if err != nil {
		unavailable(w, err)
		return
	}
	if entries == nil {
		entries = []models.AlertLogEntry{}
	}
	writeJSON(w, entries)
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entries, err := s.source.Alerts(r.Context())
	if err != nil {
		unavailable(w, err)
		return
	}
	for _, e := range entries {
		if e.ID == id {
			writeJSON(w, e)
			return
		}
	}
	http.Error(w, "alert not found", http.StatusNotFound)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	summary, err := s.source.Timeline(r.Context())
	if err != nil {
		unavailable(w, err)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	data, err := s.source.OverlayPNG(r.Context())
	if err != nil {
		unavailable(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
