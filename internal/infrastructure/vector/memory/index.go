// Package memory provides the default per-session vector index: an
// in-process cosine-similarity store that lives and dies with its session.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

// Factory hands out one fresh Index per session.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) New(_ context.Context, sessionID string) (ports.VectorIndex, error) {
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new memory index", fmt.Errorf("empty session id"))
	}
	return NewIndex(), nil
}

type Index struct {
	mu     sync.RWMutex
	dim    int
	chunks []domain.Chunk
}

func NewIndex() *Index {
	return &Index{}
}

// Add appends chunks to the index. Dimensionality is fixed by the first
// vector ever added; any later mismatch means the session's embedding
// configuration is corrupted and fails with ErrDimensionMismatch.
func (i *Index) Add(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "index add", fmt.Errorf("chunk %s/%d has no vector", chunk.DocumentID, chunk.Index))
		}
		if i.dim == 0 {
			i.dim = len(chunk.Vector)
		}
		if len(chunk.Vector) != i.dim {
			return domain.WrapError(domain.ErrDimensionMismatch, "index add", fmt.Errorf("got %d, index uses %d", len(chunk.Vector), i.dim))
		}
	}
	i.chunks = append(i.chunks, chunks...)
	return nil
}

// Search returns the k nearest chunks by cosine similarity, best first.
// Searching an empty index is caller misuse, not an error: it yields the
// empty-result indicator. Equal scores keep insertion order.
func (i *Index) Search(_ context.Context, queryVector []float32, k int) ([]domain.RetrievedChunk, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.chunks) == 0 {
		return nil, nil
	}
	if len(queryVector) != i.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "index search", fmt.Errorf("got %d, index uses %d", len(queryVector), i.dim))
	}
	if k <= 0 {
		return nil, nil
	}

	scored := make([]domain.RetrievedChunk, 0, len(i.chunks))
	for _, chunk := range i.chunks {
		scored = append(scored, domain.RetrievedChunk{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			Score:      cosineSimilarity(queryVector, chunk.Vector),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

// Drop discards every chunk. Called at session teardown.
func (i *Index) Drop(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.chunks = nil
	i.dim = 0
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for idx := range a {
		dot += float64(a[idx]) * float64(b[idx])
		normA += float64(a[idx]) * float64(a[idx])
		normB += float64(b[idx]) * float64(b[idx])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
