// Package http exposes command execution and stage inspection over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/internal/report"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/request"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Processor executes command requests and reports their outcome.
type Processor interface {
	Execute(ctx context.Context, req *domain.CommandRequest) (*domain.CommandResult, error)
	Report(result *domain.CommandResult) (*report.Document, []byte, error)
}

// Server serves the agent API.
type Server struct {
	Processor Processor
	Stages    ports.StageStore

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the agent.
func NewHandler(proc Processor, stages ports.StageStore, opts ...Option) http.Handler {
	s := &Server{
		Processor: proc,
		Stages:    stages,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.GetHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/commands", s.PostCommand)
		r.Get("/stages", s.ListStages)
		r.Get("/stages/{requestID}", s.GetStage)
		r.Delete("/stages/{requestID}", s.DeleteStage)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// PostCommand handles POST /v1/commands. The body is the request document;
// invocation identifiers come from the query string.
func (s *Server) PostCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, request.MaxSize+1))
	if err != nil || len(body) > request.MaxSize {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := r.URL.Query()
	req, err := domain.ParseCommandRequest(body, domain.Invocation{
		CfnCommandName: q.Get("cfn_command_name"),
		InvocationID:   q.Get("invocation_id"),
		DispatcherID:   q.Get("dispatcher_id"),
	})
	if err != nil {
		s.logger.Warn("PostCommand: invalid request", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.Processor.Execute(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrInadmissible):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("PostCommand: execution failed", "request_id", req.RequestID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, data, err := s.Processor.Report(result)
	if err != nil {
		s.logger.Warn("PostCommand: report over budget", "request_id", req.RequestID, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type stageResponse struct {
	RequestID string `json:"request_id"`
	Stage     int    `json:"stage"`
}

// GetStage handles GET /v1/stages/{requestID}.
func (s *Server) GetStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	stage, err := s.Stages.Load(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrStageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("GetStage failed", "request_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stageResponse{RequestID: id, Stage: stage})
}

// ListStages handles GET /v1/stages.
func (s *Server) ListStages(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Stages.List(r.Context())
	if err != nil {
		s.logger.Error("ListStages failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"request_ids": ids})
}

// DeleteStage handles DELETE /v1/stages/{requestID}.
func (s *Server) DeleteStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	if err := s.Stages.Delete(r.Context(), id); err != nil {
		s.logger.Error("DeleteStage failed", "request_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
