package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sverka/internal/metrics"
	"github.com/kalambet/sverka/internal/pipeline"
	"github.com/kalambet/sverka/internal/retrieval"
	"github.com/kalambet/sverka/internal/taxonomy"
)

const maxRequestBodySize = 4 << 20 // 4MB

// ChecklistRunner verifies one project checklist.
type ChecklistRunner interface {
	Run(ctx context.Context, p pipeline.Project) (*pipeline.VerificationReport, error)
}

// RemarksRunner structures remark batches and classifies single texts.
type RemarksRunner interface {
	Run(ctx context.Context, b pipeline.Batch) (*pipeline.RemarksReport, error)
	Classify(ctx context.Context, text string) (taxonomy.Assignment, error)
}

// Deps holds what the HTTP and MCP surfaces call into.
type Deps struct {
	Checklist ChecklistRunner
	Remarks   RemarksRunner
	Metrics   *metrics.Metrics
	// Token enables bearer auth on the work routes when non-empty.
	Token string
}

type checklistRequest struct {
	Project  string   `json:"project"`
	DocsDir  string   `json:"docs_dir"`
	Criteria []string `json:"criteria"`
}

type checklistResponse struct {
	RunID   string                       `json:"run_id"`
	Project string                       `json:"project"`
	Results *pipeline.VerificationReport `json:"results"`
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Major    string `json:"major"`
	Sub      string `json:"sub"`
	Category string `json:"category"`
}

// NewRouter returns the HTTP API: unauthenticated /health and /metrics plus
// the work routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/checklist", handleChecklist(deps))
		r.Post("/remarks", handleRemarks(deps))
		r.Post("/classify", handleClassify(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleChecklist(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checklistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Project) == "" || req.DocsDir == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "project and docs_dir are required")
			return
		}

		report, err := deps.Checklist.Run(r.Context(), pipeline.Project{
			Name:     req.Project,
			DocsDir:  req.DocsDir,
			Criteria: nonBlank(req.Criteria),
		})
		switch {
		case errors.Is(err, pipeline.ErrNoCriteria), errors.Is(err, retrieval.ErrNoDocuments):
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "checklist failed: %v", err)
			return
		}
		writeJSON(w, checklistResponse{RunID: report.RunID, Project: report.Project, Results: report})
	}
}

func handleRemarks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b pipeline.Batch
		if !decodeBody(w, r, &b) {
			return
		}
		if len(b.Remarks) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "remarks is required and must not be empty")
			return
		}
		report, err := deps.Remarks.Run(r.Context(), b)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "remark batch failed: %v", err)
			return
		}
		writeJSON(w, report)
	}
}

func handleClassify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		a, err := deps.Remarks.Classify(r.Context(), req.Text)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "classification failed: %v", err)
			return
		}
		writeJSON(w, classifyResponse{Major: a.Major, Sub: a.Sub, Category: a.Key()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
