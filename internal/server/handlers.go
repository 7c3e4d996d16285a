package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/extract"
	"github.com/finbot/finbot/internal/models"
	"github.com/finbot/finbot/internal/sanitize"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("query request", zap.Int("query_length", len(req.Query)), zap.Int("k", req.K))

	resp, err := s.orchestrator.Answer(r.Context(), req)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if name == "." || name == "/" || !extract.SupportedExt(ext) {
		s.respondError(w, http.StatusBadRequest, "file type not allowed")
		return
	}

	if err := os.MkdirAll(s.config.Storage.DataDir, 0755); err != nil {
		s.logger.Error("create data directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	dest := filepath.Join(s.config.Storage.DataDir, name)
	out, err := os.Create(dest)
	if err != nil {
		s.logger.Error("create upload file failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.logger.Error("write upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	out.Close()

	result, err := s.ingestor.IngestFile(r.Context(), dest)
	if err != nil {
		s.logger.Error("ingest upload failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

// handleAddDocument adds one QA passage supplied directly in the request
// body, bypassing file upload. Manual additions share the fixed source
// "manual_addition" so they can be listed and replaced as a group.
func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		s.respondError(w, http.StatusBadRequest, "question and answer are required")
		return
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "Uncategorized"
	}

	content := sanitize.Clean(fmt.Sprintf("Question: %s\nAnswer: %s", req.Question, req.Answer))
	if !sanitize.IsValidChunk(content) {
		s.respondError(w, http.StatusBadRequest, "document content too short")
		return
	}

	passage := models.Passage{
		Content:  content,
		Category: category,
		Question: req.Question,
		Answer:   req.Answer,
		Source:   "manual_addition",
	}
	stored := []models.StoredPassage{{ID: uuid.New().String(), Passage: passage}}
	if err := s.registry.BatchAddPassages(r.Context(), stored); err != nil {
		s.logger.Error("register manual document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.Add(r.Context(), []models.Passage{passage}); err != nil {
		s.logger.Error("index manual document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"message": "document added",
		"source":  passage.Source,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	sources, err := s.registry.ListSources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []models.SourceInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": sources})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passageCount, err := s.registry.CountPassages(ctx)
	if err != nil {
		s.logger.Error("status: count passages failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	fileCount, err := s.registry.CountFiles(ctx)
	if err != nil {
		s.logger.Error("status: count files failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"passages":          passageCount,
		"files":             fileCount,
		"vector_index_size": s.store.Size(),
		"dimensions":        s.store.Dimensions(),
		"session":           s.collector.Stats(),
		"config": map[string]interface{}{
			"embedding_model": s.config.Embedding.Model,
			"llm_service":     s.config.LLM.Service,
			"llm_model":       s.config.LLM.Model,
			"min_chunk_size":  s.config.Chunking.MinChunkSize,
			"max_chunk_size":  s.config.Chunking.MaxChunkSize,
			"overlap_size":    s.config.Chunking.OverlapSize,
			"top_k":           s.config.Retrieval.TopK,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
