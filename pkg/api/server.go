package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshpipe/meshpipe/pkg/logging"
	"github.com/meshpipe/meshpipe/pkg/pipeline"
)

// Server exposes pipeline status and metrics over HTTP while a run is in
// progress.
type Server struct {
	executor *pipeline.Executor
	registry *prometheus.Registry
	log      *logging.Logger
	srv      *http.Server
}

// NewServer builds the status server for one executor.
func NewServer(addr string, executor *pipeline.Executor, registry *prometheus.Registry, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		executor: executor,
		registry: registry,
		log:      log,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table. Split out so tests can drive it with
// httptest.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Status server listening", map[string]interface{}{"addr": s.srv.Addr})
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	Chunks map[string]pipeline.ExecutionStatus `json:"chunks"`
	Count  int                                 `json:"count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	board := s.executor.Board()
	resp := statusResponse{Chunks: board, Count: len(board)}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("Failed to encode status response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
