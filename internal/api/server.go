package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantfold/screener/internal/workflow"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

// Server is the read-only status API exposed by the daemon. It reports the
// current day's progress and the buy list; it never mutates anything.
type Server struct {
	scheduler *workflow.Scheduler
	logger    *logger.Logger
	srv       *http.Server
}

// New builds the API server.
func New(cfg *config.Config, scheduler *workflow.Scheduler, log *logger.Logger) *Server {
	s := &Server{
		scheduler: scheduler,
		logger:    log.WithField("module", "api"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/phases", s.handlePhases).Methods(http.MethodGet)
	v1.HandleFunc("/buylist", s.handleBuyList).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called. Blocks.
func (s *Server) Start() error {
	s.logger.Infof("Status API listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handlePhases(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scheduler.Status().Phases)
}

func (s *Server) handleBuyList(w http.ResponseWriter, _ *http.Request) {
	st := s.scheduler.Status()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":     st.Date,
		"buy_list": st.BuyList,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
