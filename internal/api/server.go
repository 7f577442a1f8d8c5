package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workflow-extractor/internal/config"
	"workflow-extractor/internal/pipeline"
	"workflow-extractor/internal/store"
	"workflow-extractor/internal/telemetry"
)

// Server wires HTTP handlers for document ingest and job administration.
type Server struct {
	cfg    config.Config
	store  *store.Store
	driver *pipeline.Driver
	logger *slog.Logger
}

// New constructs the API server.
func New(cfg config.Config, st *store.Store, driver *pipeline.Driver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		store:  st,
		driver: driver,
		logger: logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/documents", s.handleIngestDocument)
	r.Get("/documents", s.handleListDocuments)
	r.Get("/documents/{id}", s.handleGetDocument)
	r.Get("/documents/{id}/workflow", s.handleGetWorkflow)

	r.Get("/tools", s.handleListTools)
	r.Get("/tools/{tool}/workflows", s.handleListWorkflows)

	r.Post("/jobs/process", s.handleProcessOne)
	r.Post("/jobs/drain", s.handleDrain)
	r.Post("/jobs/requeue", s.handleRequeue)
	r.Get("/jobs/stats", s.handleJobStats)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Delete("/jobs/{id}", s.handleDeleteJob)

	return r
}

type ingestRequest struct {
	ToolName  string     `json:"tool_name"`
	URL       string     `json:"url"`
	Title     *string    `json:"title"`
	Content   string     `json:"content"`
	Category  *string    `json:"category"`
	CrawledAt *time.Time `json:"crawled_at"`
}

type ingestResponse struct {
	DocumentID string           `json:"document_id"`
	Outcome    pipeline.Outcome `json:"outcome"`
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := validateIngest(raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ingestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	crawledAt := time.Now().UTC()
	if req.CrawledAt != nil {
		crawledAt = *req.CrawledAt
	}
	doc, err := s.store.UpsertDocument(r.Context(), store.UpsertDocumentParams{
		ToolName:  strings.TrimSpace(req.ToolName),
		URL:       strings.TrimSpace(req.URL),
		Title:     req.Title,
		Content:   req.Content,
		Category:  req.Category,
		CrawledAt: crawledAt,
	})
	if err != nil {
		s.logger.Error("ingest.upsert_failed", "error", err)
		http.Error(w, "failed to store document", http.StatusInternalServerError)
		return
	}
	telemetry.DocumentsIngested.Inc()

	outcome, err := s.driver.OnNewDocument(r.Context(), doc)
	if err != nil {
		// The document is stored and the job enqueued (or already running),
		// so ingest still reports accepted. The failure detail rides along.
		s.logger.Error("ingest.process_failed", "document_id", doc.ID, "error", err)
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{DocumentID: doc.ID, Outcome: outcome})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	tool := r.URL.Query().Get("tool")

	var (
		docs any
		err  error
	)
	if tool != "" {
		docs, err = s.store.ListDocumentsByTool(r.Context(), tool, limit)
	} else {
		docs, err = s.store.ListRecentDocuments(r.Context(), limit)
	}
	if err != nil {
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := s.store.GetWorkflowByDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "no workflow for document", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load workflow", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.store.ListTools(r.Context())
	if err != nil {
		http.Error(w, "failed to list tools", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")
	limit := intQuery(r, "limit", 50)
	workflows, err := s.store.ListWorkflowsByTool(r.Context(), tool, limit)
	if err != nil {
		http.Error(w, "failed to list workflows", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *Server) handleProcessOne(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.driver.ProcessNextJob(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type drainRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	var req drainRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Limit == 0 {
		req.Limit = s.cfg.BatchLimit
	}
	outcomes, err := s.driver.ProcessBatch(r.Context(), req.Limit)
	if err != nil {
		s.logger.Error("drain.failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

type requeueRequest struct {
	ToolName string `json:"tool_name"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var req requeueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	var (
		scanned, enqueued int
		err               error
	)
	if req.ToolName != "" {
		scanned, enqueued, err = s.store.RequeueByTool(r.Context(), req.ToolName, req.Limit)
	} else {
		scanned, enqueued, err = s.store.RequeueRecent(r.Context(), req.Limit)
	}
	if err != nil {
		http.Error(w, "requeue failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"scanned": scanned, "enqueued": enqueued})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.JobStats(r.Context())
	if err != nil {
		http.Error(w, "failed to read stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		http.Error(w, "failed to delete job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
