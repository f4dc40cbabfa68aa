// Package httpadapter exposes the session-scoped document pipeline over
// HTTP. Every data-bearing endpoint is nested under a session so callers can
// never cross session boundaries by construction.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mkravets/docveil/internal/config"
	"github.com/mkravets/docveil/internal/core/ports"
	"github.com/mkravets/docveil/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	sessions ports.SessionService
	ingestUC ports.DocumentIngestor
	repo     ports.DocumentRepository
	metrics  *metrics.HTTPServerMetrics
	cfg      config.Config
}

func NewRouter(
	sessions ports.SessionService,
	ingestUC ports.DocumentIngestor,
	repo ports.DocumentRepository,
	serverMetrics *metrics.HTTPServerMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		sessions: sessions,
		ingestUC: ingestUC,
		repo:     repo,
		metrics:  serverMetrics,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/sessions/{session_id}", rt.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{session_id}", rt.teardownSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/documents", rt.uploadDocument)
	mux.HandleFunc("POST /v1/sessions/{session_id}/query", rt.querySession)
	mux.HandleFunc("GET /v1/sessions/{session_id}/suggestions", rt.suggestQuestions)
	mux.HandleFunc("POST /v1/sessions/{session_id}/anonymize", rt.anonymizeText)
	mux.HandleFunc("POST /v1/sessions/{session_id}/deanonymize", rt.deanonymizeText)
	mux.HandleFunc("GET /v1/sessions/{session_id}/pii", rt.piiReport)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocumentByID)

	var handler http.Handler = mux
	if rt.cfg.APIMaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, time.Duration(rt.cfg.APIBackpressureMS)*time.Millisecond)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	info, err := rt.sessions.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSessionEvent(serviceName, "created")
	}
	writeJSON(w, http.StatusCreated, info)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	info, err := rt.sessions.Get(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rt *Router) teardownSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Teardown(r.Context(), r.PathValue("session_id")); err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSessionEvent(serviceName, "closed")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		r.PathValue("session_id"),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) querySession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	answer, err := rt.sessions.Query(r.Context(), r.PathValue("session_id"), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordQuery(serviceName, len(answer.Sources), time.Since(start))
	}

	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) suggestQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := rt.sessions.Suggest(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (rt *Router) anonymizeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	anonymized, kinds, err := rt.sessions.Anonymize(r.Context(), r.PathValue("session_id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		for _, kind := range kinds {
			rt.metrics.RecordPIIDetected(serviceName, string(kind), 1)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": anonymized, "kinds": kinds})
}

func (rt *Router) deanonymizeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	text, err := rt.sessions.Deanonymize(r.Context(), r.PathValue("session_id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (rt *Router) piiReport(w http.ResponseWriter, r *http.Request) {
	report, err := rt.sessions.PIIReport(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.repo.GetByID(r.Context(), r.PathValue("document_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
