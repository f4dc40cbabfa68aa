package ports

import (
	"context"
	"io"

	"github.com/mkravets/docveil/internal/core/domain"
)

// SessionService is the inbound contract for the privacy-preserving
// retrieval pipeline, keyed by opaque session IDs.
type SessionService interface {
	Create(ctx context.Context) (*domain.SessionInfo, error)
	Get(ctx context.Context, sessionID string) (*domain.SessionInfo, error)
	Ingest(ctx context.Context, sessionID, documentID, text string) (domain.IngestResult, error)
	Query(ctx context.Context, sessionID, question string) (*domain.Answer, error)
	Suggest(ctx context.Context, sessionID string) ([]string, error)
	Anonymize(ctx context.Context, sessionID, text string) (string, []domain.EntityKind, error)
	Deanonymize(ctx context.Context, sessionID, text string) (string, error)
	PIIReport(ctx context.Context, sessionID string) (*domain.PIIReport, error)
	Teardown(ctx context.Context, sessionID string) error
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, sessionID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document
// processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
