package domain

// Chunk is a contiguous slice of anonymized document text plus its embedding.
// Chunks are created during ingestion and immutable thereafter.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"-"`
}

type RetrievedChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Answer is a deanonymized generation result with its anonymized sources.
type Answer struct {
	SessionID string           `json:"session_id"`
	Text      string           `json:"text"`
	Sources   []RetrievedChunk `json:"sources"`
}
