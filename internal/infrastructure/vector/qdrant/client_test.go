package qdrant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mkravets/docveil/internal/core/domain"
)

func testChunks(vectors ...[]float32) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(vectors))
	for i, v := range vectors {
		out = append(out, domain.Chunk{DocumentID: "doc-1", Index: i, Text: "chunk", Vector: v})
	}
	return out
}

func TestAddCreatesCollectionLazily(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docveil_s1":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docveil_s1/points":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	idx, err := NewFactory(server.URL, "docveil").New(context.Background(), "s1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := idx.Add(context.Background(), testChunks([]float32{0.1, 0.2})); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	if err := idx.Add(context.Background(), testChunks([]float32{0.3, 0.4})); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected one collection create, got %d", got)
	}
	if idx.Size() != 2 {
		t.Fatalf("expected size 2, got %d", idx.Size())
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	idx, err := NewFactory(server.URL, "docveil").New(context.Background(), "s1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := idx.Add(context.Background(), testChunks([]float32{0.1, 0.2})); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	err = idx.Add(context.Background(), testChunks([]float32{0.1, 0.2, 0.3}))
	if !domain.IsKind(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchEmptyIndexSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty index")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	idx, err := NewFactory(server.URL, "docveil").New(context.Background(), "s1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := idx.Search(context.Background(), []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestSearchDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/points/search") {
			_, _ = w.Write([]byte(`{"result":[{"score":0.9,"payload":{"doc_id":"doc-7","chunk_index":3,"text":"claims"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	idx, err := NewFactory(server.URL, "docveil").New(context.Background(), "s1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := idx.Add(context.Background(), testChunks([]float32{0.1, 0.2})); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, err := idx.Search(context.Background(), []float32{0.1, 0.2}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one result, got %d", len(got))
	}
	if got[0].DocumentID != "doc-7" || got[0].ChunkIndex != 3 || got[0].Text != "claims" || got[0].Score != 0.9 {
		t.Fatalf("unexpected result: %+v", got[0])
	}
}

func TestDropDeletesCollection(t *testing.T) {
	var deleted int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/collections/docveil_s1" {
			atomic.AddInt32(&deleted, 1)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	idx, err := NewFactory(server.URL, "docveil").New(context.Background(), "s1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := idx.Add(context.Background(), testChunks([]float32{0.1, 0.2})); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := idx.Drop(context.Background()); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if atomic.LoadInt32(&deleted) != 1 {
		t.Fatalf("expected one delete request")
	}
	if idx.Size() != 0 {
		t.Fatalf("expected size 0 after drop, got %d", idx.Size())
	}
}
