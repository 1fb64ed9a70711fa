package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/contrarian/internal/analysis"
	"github.com/kalambet/contrarian/internal/jobs"
	"github.com/kalambet/contrarian/internal/storage"
)

// --- mocks ---

type mockRunner struct {
	done       chan struct{}
	jobID      string
	company    string
	reportType string
	filePath   string
}

func newMockRunner() *mockRunner {
	return &mockRunner{done: make(chan struct{})}
}

func (m *mockRunner) Run(_ context.Context, jobID, company, reportType, filePath string) {
	m.jobID, m.company, m.reportType, m.filePath = jobID, company, reportType, filePath
	close(m.done)
}

type mockRetriever struct {
	context  string
	err      error
	question string
	company  string
}

func (m *mockRetriever) Query(_ context.Context, question, company string, _ int) (string, error) {
	m.question, m.company = question, company
	return m.context, m.err
}

type mockGenerator struct {
	text   string
	err    error
	prompt string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.text, m.err
}

type mockLedger struct {
	rows  []storage.Ingestion
	err   error
	limit int
}

func (m *mockLedger) ListIngestions(limit, _ int) ([]storage.Ingestion, error) {
	m.limit = limit
	return m.rows, m.err
}

// --- helpers ---

type testEnv struct {
	deps      AppDeps
	runner    *mockRunner
	retriever *mockRetriever
	generator *mockGenerator
	ledger    *mockLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		runner:    newMockRunner(),
		retriever: &mockRetriever{context: "Revenue grew 12%."},
		generator: &mockGenerator{text: "Revenue grew 12% year over year."},
		ledger:    &mockLedger{},
	}
	env.deps = AppDeps{
		Registry:   jobs.NewRegistry(),
		Runner:     env.runner,
		Retriever:  env.retriever,
		Generator:  env.generator,
		Ingestions: env.ledger,
		TopK:       5,
		UploadDir:  t.TempDir(),
	}
	return env
}

func multipartBody(t *testing.T, fields map[string]string, fileName, fileContent string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("main_report", fileName)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		fw.Write([]byte(fileContent))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func doRequest(t *testing.T, deps AppDeps, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	NewAppHandler(deps).ServeHTTP(rr, req)
	return rr
}

// --- tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := doRequest(t, env.deps, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestAnalyzeStartsJob(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, map[string]string{
		"company_name": "Acme Corp",
		"report_type":  "annual",
	}, "report.txt", "Annual report text.")

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rr := doRequest(t, env.deps, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	jobID := resp["job_id"]
	if jobID == "" {
		t.Fatal("missing job_id in response")
	}

	if _, err := env.deps.Registry.Get(jobID); err != nil {
		t.Errorf("job not registered: %v", err)
	}

	select {
	case <-env.runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never invoked")
	}
	if env.runner.company != "Acme Corp" || env.runner.reportType != "annual" {
		t.Errorf("runner got company=%q type=%q", env.runner.company, env.runner.reportType)
	}
	if env.runner.jobID != jobID {
		t.Errorf("runner got job %q, response reported %q", env.runner.jobID, jobID)
	}
	if !strings.HasPrefix(env.runner.filePath, env.deps.UploadDir) || !strings.HasSuffix(env.runner.filePath, ".txt") {
		t.Errorf("file path = %q, want {upload_dir}/*.txt", env.runner.filePath)
	}
	saved, err := os.ReadFile(env.runner.filePath)
	if err != nil {
		t.Fatalf("reading saved upload: %v", err)
	}
	if string(saved) != "Annual report text." {
		t.Errorf("saved upload = %q", saved)
	}
}

func TestAnalyzeDefaultsReportType(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, map[string]string{"company_name": "Acme"}, "r.pdf", "%PDF-")

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rr := doRequest(t, env.deps, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	<-env.runner.done
	if env.runner.reportType != "annual" {
		t.Errorf("reportType = %q, want annual default", env.runner.reportType)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	cases := []struct {
		name     string
		fields   map[string]string
		fileName string
	}{
		{"missing company", map[string]string{"report_type": "annual"}, "r.pdf"},
		{"bad report type", map[string]string{"company_name": "Acme", "report_type": "weekly"}, "r.pdf"},
		{"missing file", map[string]string{"company_name": "Acme"}, ""},
		{"bad extension", map[string]string{"company_name": "Acme"}, "r.exe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			body, contentType := multipartBody(t, tc.fields, tc.fileName, "content")
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
			req.Header.Set("Content-Type", contentType)

			if rr := doRequest(t, env.deps, req); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestAnalyzeSaveFailureRegistersNoJob(t *testing.T) {
	env := newTestEnv(t)
	// A regular file where the upload directory should be makes saveUpload fail.
	blocker := env.deps.UploadDir + "/blocker"
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("writing blocker file: %v", err)
	}
	env.deps.UploadDir = blocker

	body, contentType := multipartBody(t, map[string]string{"company_name": "Acme"}, "r.txt", "text")
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rr := doRequest(t, env.deps, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	select {
	case <-env.runner.done:
		t.Error("runner must not start when the upload cannot be saved")
	case <-time.After(50 * time.Millisecond):
	}
	if env.runner.jobID != "" {
		t.Errorf("a job %q was created for a failed upload", env.runner.jobID)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	rr := doRequest(t, env.deps, httptest.NewRequest(http.MethodGet, "/api/status/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestStatusReturnsJob(t *testing.T) {
	env := newTestEnv(t)
	id := env.deps.Registry.Create()

	rr := doRequest(t, env.deps, httptest.NewRequest(http.MethodGet, "/api/status/"+id, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var job jobs.Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decoding job: %v", err)
	}
	if job.JobID != id || job.Status != jobs.StatusQueued {
		t.Errorf("job = %+v", job)
	}
}

func askRequest(t *testing.T, jobID, question string) *http.Request {
	t.Helper()
	body, _ := json.Marshal(QuestionRequest{Question: question})
	req := httptest.NewRequest(http.MethodPost, "/api/ask/"+jobID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAskUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	if rr := doRequest(t, env.deps, askRequest(t, "nope", "How is revenue?")); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestAskUsesIngestedContext(t *testing.T) {
	env := newTestEnv(t)
	id := env.deps.Registry.Create()
	env.deps.Registry.Complete(id, &analysis.AnalysisResult{CompanyName: "Acme"})

	rr := doRequest(t, env.deps, askRequest(t, id, "How is revenue?"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp QuestionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer != "Revenue grew 12% year over year." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if env.retriever.company != "Acme" || env.retriever.question != "How is revenue?" {
		t.Errorf("retriever got company=%q question=%q", env.retriever.company, env.retriever.question)
	}
	if !strings.Contains(env.generator.prompt, "Revenue grew 12%.") {
		t.Errorf("prompt missing retrieved context:\n%s", env.generator.prompt)
	}
}

func TestAskBeforeCompletionSkipsRetrieval(t *testing.T) {
	env := newTestEnv(t)
	id := env.deps.Registry.Create()

	rr := doRequest(t, env.deps, askRequest(t, id, "How is revenue?"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if env.retriever.question != "" {
		t.Error("retrieval must be skipped before the job has a result")
	}
}

func TestAskGenerationErrorIsApologetic(t *testing.T) {
	env := newTestEnv(t)
	env.generator.err = errors.New("quota exceeded")
	id := env.deps.Registry.Create()
	env.deps.Registry.Complete(id, &analysis.AnalysisResult{CompanyName: "Acme"})

	rr := doRequest(t, env.deps, askRequest(t, id, "How is revenue?"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, generation failure must not be an http error", rr.Code)
	}

	var resp QuestionResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !strings.Contains(resp.Answer, "I'm sorry, I encountered an error") {
		t.Errorf("Answer = %q", resp.Answer)
	}
}

func TestAskRetrievalErrorIs500(t *testing.T) {
	env := newTestEnv(t)
	env.retriever.err = errors.New("index unavailable")
	id := env.deps.Registry.Create()
	env.deps.Registry.Complete(id, &analysis.AnalysisResult{CompanyName: "Acme"})

	if rr := doRequest(t, env.deps, askRequest(t, id, "How is revenue?")); rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	env := newTestEnv(t)
	id := env.deps.Registry.Create()

	if rr := doRequest(t, env.deps, askRequest(t, id, "  ")); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestListIngestions(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.rows = []storage.Ingestion{
		{ID: "ing-1", Company: "Acme", ReportType: "annual", ChunkCount: 7, CreatedAt: time.Now().UTC()},
	}

	rr := doRequest(t, env.deps, httptest.NewRequest(http.MethodGet, "/api/ingestions?limit=3", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if env.ledger.limit != 3 {
		t.Errorf("limit = %d, want 3", env.ledger.limit)
	}

	var resp struct {
		Ingestions []IngestionInfo `json:"ingestions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Ingestions) != 1 || resp.Ingestions[0].Company != "Acme" || resp.Ingestions[0].ChunkCount != 7 {
		t.Errorf("ingestions = %+v", resp.Ingestions)
	}
}

func TestListIngestionsBadLimit(t *testing.T) {
	env := newTestEnv(t)
	if rr := doRequest(t, env.deps, httptest.NewRequest(http.MethodGet, "/api/ingestions?limit=zero", nil)); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestListIngestionsLedgerError(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.err = errors.New("db closed")
	if rr := doRequest(t, env.deps, httptest.NewRequest(http.MethodGet, "/api/ingestions", nil)); rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}
