package ports

import (
	"context"
	"io"

	"github.com/mkravets/docveil/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestResult(ctx context.Context, id string, result domain.IngestResult) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document. An empty string
// with a nil error means the document carried no indexable content.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits anonymized text into overlapping windows.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex is one session's append-only similarity store.
type VectorIndex interface {
	Add(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievedChunk, error)
	Size() int
	Drop(ctx context.Context) error
}

// IndexFactory builds a fresh index for a new session.
type IndexFactory interface {
	New(ctx context.Context, sessionID string) (VectorIndex, error)
}

// AnswerGenerator produces text from an assembled prompt. Prompts reaching
// this port must already be fully anonymized; nothing below it ever sees raw
// PII.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RerankScorer assigns a relevance score to a (query, chunk) pair; higher is
// more relevant.
type RerankScorer interface {
	Score(query, chunk string) float64
}
