package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	ChunkCount  int            `json:"chunk_count"`
	KindsFound  []EntityKind   `json:"kinds_found"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IngestResult is what one ingestion pass produced for a document: how many
// chunks were indexed and which PII kinds were masked on the way in.
type IngestResult struct {
	ChunkCount int          `json:"chunk_count"`
	KindsFound []EntityKind `json:"kinds_found"`
}
