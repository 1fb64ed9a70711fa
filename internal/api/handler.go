// Package api exposes the analysis pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/contrarian/internal/jobs"
	"github.com/kalambet/contrarian/internal/storage"
)

const maxUploadSize = 50 << 20 // 50MB

// JobRunner executes a registered job to completion in the background.
type JobRunner interface {
	Run(ctx context.Context, jobID, company, reportType, filePath string)
}

// ContextRetriever serves retrieval context for the Q&A endpoint.
type ContextRetriever interface {
	Query(ctx context.Context, question, company string, topK int) (string, error)
}

// Generator is a raw generative call. Q&A uses it directly: unlike the
// analysis stages there is no fallback result to substitute, the user just
// gets an apologetic answer when generation fails.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// IngestionLister reads the ingestion ledger for inspection endpoints.
type IngestionLister interface {
	ListIngestions(limit, offset int) ([]storage.Ingestion, error)
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Registry   *jobs.Registry
	Runner     JobRunner
	Retriever  ContextRetriever
	Generator  Generator
	Ingestions IngestionLister
	TopK       int
	UploadDir  string
}

// NewAppHandler builds the REST API router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/api/analyze", handleAnalyze(deps))
	r.Get("/api/status/{job_id}", handleStatus(deps))
	r.Post("/api/ask/{job_id}", handleAsk(deps))
	r.Get("/api/ingestions", handleIngestions(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		company := strings.TrimSpace(r.FormValue("company_name"))
		if company == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "company_name is required")
			return
		}

		reportType := r.FormValue("report_type")
		if reportType == "" {
			reportType = "annual"
		}
		if reportType != "annual" && reportType != "quarterly" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "report_type must be annual or quarterly")
			return
		}

		file, header, err := r.FormFile("main_report")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "main_report file is required")
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".pdf", ".txt", ".md":
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported report format %q", ext)
			return
		}

		// Save the upload before registering the job, so a storage failure
		// never leaves a queued job that no runner will ever pick up.
		filePath := filepath.Join(deps.UploadDir, uuid.NewString()+ext)
		if err := saveUpload(filePath, file); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save upload: %v", err)
			return
		}

		jobID := deps.Registry.Create()

		// The job outlives the request, so it gets a fresh context.
		go deps.Runner.Run(context.Background(), jobID, company, reportType, filePath)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"job_id": jobID})
	}
}

func saveUpload(path string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "job_id")

		job, err := deps.Registry.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

// QuestionRequest is the Q&A request body.
type QuestionRequest struct {
	Question string `json:"question"`
}

// QuestionResponse is the Q&A response body.
type QuestionResponse struct {
	Answer string `json:"answer"`
}

func handleAsk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "job_id")

		job, err := deps.Registry.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req QuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		answer, err := answerQuestion(r.Context(), deps.Retriever, deps.Generator, deps.TopK, job, req.Question)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to retrieve context: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QuestionResponse{Answer: answer})
	}
}

// answerQuestion answers a free-form question about a job's company.
// Context is only available once the job has a result to name the company;
// before that the model answers from the question alone. A retrieval failure
// is an error, but a generation failure becomes an apologetic answer since
// Q&A has no fallback result to substitute.
func answerQuestion(ctx context.Context, retriever ContextRetriever, gen Generator, topK int, job jobs.Job, question string) (string, error) {
	var context_ string
	company := "the company"
	if job.Result != nil {
		company = job.Result.CompanyName
		var err error
		context_, err = retriever.Query(ctx, question, company, topK)
		if err != nil {
			return "", err
		}
	}

	prompt := fmt.Sprintf(`Context about %s:
%s

User Question: %s

Answer the question based on the context provided.`, company, context_, question)

	answer, err := gen.Generate(ctx, prompt)
	if err != nil {
		return fmt.Sprintf("I'm sorry, I encountered an error: %v", err), nil
	}
	return answer, nil
}

// IngestionInfo is one row of the ingestion ledger as served by the API.
type IngestionInfo struct {
	ID         string    `json:"id"`
	Company    string    `json:"company"`
	ReportType string    `json:"report_type"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func handleIngestions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		rows, err := deps.Ingestions.ListIngestions(limit, 0)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list ingestions: %v", err)
			return
		}

		out := make([]IngestionInfo, len(rows))
		for i, row := range rows {
			out[i] = IngestionInfo{
				ID:         row.ID,
				Company:    row.Company,
				ReportType: row.ReportType,
				ChunkCount: row.ChunkCount,
				CreatedAt:  row.CreatedAt,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ingestions": out})
	}
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
