package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/observability"
	"dexloan-indexer/internal/storage"
)

// Config holds HTTP settings for the server.
type Config struct {
	WebhookPath  string
	AuthToken    string // empty disables the Authorization check
	MaxBodyBytes int64
}

// Server routes webhook deliveries to the pipeline and serves health,
// metrics, status and read-only mirror lookups.
type Server struct {
	config   Config
	pipeline *Pipeline
	mirror   storage.Mirror
	skips    storage.SkipStore
	router   *mux.Router
	started  time.Time
	logger   *zap.Logger
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config, pipeline *Pipeline, mirror storage.Mirror, skips storage.SkipStore, logger *zap.Logger) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	s := &Server{
		config:   cfg,
		pipeline: pipeline,
		mirror:   mirror,
		skips:    skips,
		router:   mux.NewRouter(),
		started:  time.Now(),
		logger:   logger.Named("ingress"),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc(s.config.WebhookPath, s.handleWebhook).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/loans", s.handleLoans).Methods(http.MethodGet)
	api.HandleFunc("/{kind}/{address}", s.handleEntity).Methods(http.MethodGet)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.config.AuthToken != "" && r.Header.Get("Authorization") != s.config.AuthToken {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	txs, err := ledger.ParseBatch(body)
	if err != nil {
		observability.RecordBatch("rejected", 0, 0)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// An accepted batch runs to completion even if the sender disconnects.
	result := s.pipeline.HandleBatch(context.WithoutCancel(r.Context()), txs)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status              string    `json:"status"`
	Uptime              string    `json:"uptime"`
	Started             time.Time `json:"started"`
	UnresolvedSkips     int64     `json:"unresolved_skips"`
	MirroredCollections int64     `json:"mirrored_collections"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	unresolved, err := s.skips.CountUnresolved(r.Context())
	if err != nil {
		s.logger.Error("count unresolved skips", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	collections, err := s.mirror.Collections.Count(r.Context())
	if err != nil {
		s.logger.Error("count collections", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	observability.UpdateUnresolvedSkips(unresolved)

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:              "running",
		Uptime:              time.Since(s.started).Round(time.Second).String(),
		Started:             s.started,
		UnresolvedSkips:     unresolved,
		MirroredCollections: collections,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
