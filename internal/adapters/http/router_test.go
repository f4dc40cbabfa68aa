package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkravets/docveil/internal/config"
	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/observability/metrics"
)

type sessionsFake struct {
	infos  map[string]*domain.SessionInfo
	answer *domain.Answer
	err    error
}

func (f *sessionsFake) Create(context.Context) (*domain.SessionInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SessionInfo{ID: "sess-1", State: domain.SessionEmpty}, nil
}

func (f *sessionsFake) Get(_ context.Context, sessionID string) (*domain.SessionInfo, error) {
	info, ok := f.infos[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errors.New(sessionID))
	}
	return info, nil
}

func (f *sessionsFake) Ingest(context.Context, string, string, string) (domain.IngestResult, error) {
	return domain.IngestResult{}, nil
}

func (f *sessionsFake) Query(_ context.Context, sessionID, _ string) (*domain.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.infos[sessionID]; !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errors.New(sessionID))
	}
	return f.answer, nil
}

func (f *sessionsFake) Suggest(context.Context, string) ([]string, error) {
	return []string{"What are the payment terms?"}, nil
}

func (f *sessionsFake) Anonymize(context.Context, string, string) (string, []domain.EntityKind, error) {
	return "EMAIL_1", []domain.EntityKind{domain.KindEmail}, nil
}

func (f *sessionsFake) Deanonymize(context.Context, string, string) (string, error) {
	return "john@example.com", nil
}

func (f *sessionsFake) PIIReport(context.Context, string) (*domain.PIIReport, error) {
	return &domain.PIIReport{Total: 1}, nil
}

func (f *sessionsFake) Teardown(context.Context, string) error { return f.err }

type ingestorFake struct {
	doc *domain.Document
	err error
}

func (f *ingestorFake) Upload(context.Context, string, string, string, io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type repoFake struct {
	doc *domain.Document
}

func (f *repoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return f.doc, nil
}

func (f *repoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}

func (f *repoFake) SaveIngestResult(context.Context, string, domain.IngestResult) error { return nil }

func newTestHandler(sessions *sessionsFake, ingestor *ingestorFake, repo *repoFake, cfg config.Config) http.Handler {
	return NewRouter(sessions, ingestor, repo, metrics.NewHTTPServerMetrics("api"), cfg).Handler()
}

func defaultFakes() (*sessionsFake, *ingestorFake, *repoFake) {
	sessions := &sessionsFake{
		infos: map[string]*domain.SessionInfo{
			"sess-1": {ID: "sess-1", State: domain.SessionIndexed},
		},
		answer: &domain.Answer{SessionID: "sess-1", Text: "answer"},
	}
	return sessions, &ingestorFake{doc: &domain.Document{ID: "doc-1", SessionID: "sess-1"}}, &repoFake{doc: &domain.Document{ID: "doc-1"}}
}

func TestCreateSessionReturns201(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}

	var info domain.SessionInfo
	if err := json.Unmarshal(res.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if info.ID != "sess-1" {
		t.Fatalf("unexpected session: %+v", info)
	}
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/sessions/nope", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	body := bytes.NewBufferString(`{"question":"  "}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/query", body))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestQueryReturnsAnswer(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	body := bytes.NewBufferString(`{"question":"What is the deadline?"}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/query", body))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var answer domain.Answer
	if err := json.Unmarshal(res.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if answer.Text != "answer" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestQueryClosedSessionReturns410(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	sessions.err = domain.WrapError(domain.ErrSessionClosed, "query", errors.New("sess-1"))
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	body := bytes.NewBufferString(`{"question":"What is the deadline?"}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/query", body))
	if res.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", res.Code)
	}
}

func TestTeardownReturns204(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-1", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/documents", bytes.NewBufferString("not multipart"))
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadAcceptsMultipart(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "policy.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("policy text")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
}

func TestGetDocumentNotFoundReturns404(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/nope", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestPIIReportEndpoint(t *testing.T) {
	sessions, ingestor, repo := defaultFakes()
	handler := newTestHandler(sessions, ingestor, repo, config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/pii", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var report domain.PIIReport
	if err := json.Unmarshal(res.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if report.Total != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
