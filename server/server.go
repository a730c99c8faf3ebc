// Package server exposes the ingestion and query pipelines over HTTP.
// Authentication and the upload/bucket path live elsewhere.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tkhr/ragdex/internal/types"
	"github.com/tkhr/ragdex/pkg/chain"
	"github.com/tkhr/ragdex/pkg/ingest"
)

type CreateEmbeddingsRequest struct {
	URL     string `json:"url"`
	Client  string `json:"client"`
	Project string `json:"project"`
}

type QueryRequest struct {
	Client   string `json:"client"`
	Project  string `json:"project"`
	FileName string `json:"file_name"`
	Query    string `json:"query"`
}

type Config struct {
	Orchestrator *ingest.Orchestrator
	Composer     *chain.Composer
	PromptPath   string
	Logger       *slog.Logger
}

type Server struct {
	config Config
	logger *slog.Logger
}

func NewWithConfig(config Config) (*Server, error) {
	if config.Orchestrator == nil || config.Composer == nil {
		return nil, errors.New("server requires an orchestrator and a composer")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{config: config, logger: config.Logger}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create_embeddings", s.handleCreateEmbeddings)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) ListenAndServe(port string) error {
	s.logger.Info("starting server", "port", port)
	return http.ListenAndServe(":"+port, s.Handler())
}

func (s *Server) handleCreateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req CreateEmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || req.Client == "" || req.Project == "" {
		s.writeError(w, http.StatusBadRequest, "url, client and project are required")
		return
	}

	result, err := s.config.Orchestrator.Ingest(r.Context(), req.URL, req.Client, req.Project)
	if err != nil {
		s.logger.Error("ingestion failed", "url", req.URL, "err", err)
		s.writeError(w, statusFor(err), "failed to create embeddings: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Client == "" || req.Project == "" || req.FileName == "" || req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "client, project, file_name and query are required")
		return
	}

	pipeline, err := s.config.Composer.BuildPipeline(r.Context(),
		req.Client, req.Project, req.FileName, s.config.PromptPath,
		[]string{"context", "question"})
	if err != nil {
		s.logger.Error("failed to build pipeline", "client", req.Client, "err", err)
		s.writeError(w, statusFor(err), "failed to build query pipeline: "+err.Error())
		return
	}

	result, err := pipeline.Invoke(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("query failed", "client", req.Client, "err", err)
		s.writeError(w, statusFor(err), "failed to answer query: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	if errors.Is(err, types.ErrUnauthorized) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"detail": msg})
}
