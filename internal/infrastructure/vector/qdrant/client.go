// Package qdrant backs per-session vector indexes with one Qdrant collection
// per session. The collection is created lazily on first add (the embedding
// dimension is only known then) and deleted wholesale at session teardown,
// preserving the session-isolation contract of the in-memory index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

type Factory struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
}

func NewFactory(baseURL, collectionPrefix string) *Factory {
	if collectionPrefix == "" {
		collectionPrefix = "docveil"
	}
	return &Factory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     collectionPrefix,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *Factory) New(_ context.Context, sessionID string) (ports.VectorIndex, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new qdrant index", fmt.Errorf("empty session id"))
	}
	return &Index{
		baseURL:    f.baseURL,
		collection: fmt.Sprintf("%s_%s", f.prefix, sessionID),
		httpClient: f.httpClient,
	}, nil
}

type Index struct {
	baseURL    string
	collection string
	httpClient *http.Client

	mu   sync.Mutex
	dim  int
	size int
}

func (i *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for _, chunk := range chunks {
		if i.dim == 0 {
			i.dim = len(chunk.Vector)
		}
		if len(chunk.Vector) == 0 || len(chunk.Vector) != i.dim {
			return domain.WrapError(domain.ErrDimensionMismatch, "qdrant add", fmt.Errorf("got %d, index uses %d", len(chunk.Vector), i.dim))
		}
	}

	if i.size == 0 {
		if err := i.ensureCollection(ctx, i.dim); err != nil {
			return err
		}
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, point{
			ID:     fmt.Sprintf("%d", i.size+len(points)+1),
			Vector: chunk.Vector,
			Payload: map[string]any{
				"doc_id":      chunk.DocumentID,
				"chunk_index": chunk.Index,
				"text":        chunk.Text,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", i.baseURL, i.collection)
	if err := i.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert points"); err != nil {
		return err
	}
	i.size += len(chunks)
	return nil
}

func (i *Index) Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievedChunk, error) {
	i.mu.Lock()
	size, dim := i.size, i.dim
	i.mu.Unlock()

	if size == 0 || k <= 0 {
		return nil, nil
	}
	if len(queryVector) != dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "qdrant search", fmt.Errorf("got %d, index uses %d", len(queryVector), dim))
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", i.baseURL, i.collection)
	if err := i.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search points"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			DocumentID: stringPayload(r.Payload, "doc_id"),
			ChunkIndex: intPayload(r.Payload, "chunk_index"),
			Text:       stringPayload(r.Payload, "text"),
			Score:      r.Score,
		})
	}
	return out, nil
}

func (i *Index) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.size
}

// Drop deletes the session's collection. A 404 is fine: nothing was ever
// added, so the collection was never created.
func (i *Index) Drop(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", i.baseURL, i.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create delete collection request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant delete collection request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant delete collection status: %s", resp.Status)
	}

	i.mu.Lock()
	i.size = 0
	i.dim = 0
	i.mu.Unlock()
	return nil
}

func (i *Index) ensureCollection(ctx context.Context, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", i.baseURL, i.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	return nil
}

func (i *Index) do(ctx context.Context, method, url string, reqBody any, out any, operation string) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
