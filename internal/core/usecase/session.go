package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mkravets/docveil/internal/anonymizer"
	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

const contextSampleLimit = 2000

type SessionConfig struct {
	// RetrieveK is the coarse candidate pool fetched from the index before
	// reranking; RerankN is the final context size handed to generation.
	RetrieveK int
	RerankN   int
	SuggestN  int
}

func (c SessionConfig) normalize() SessionConfig {
	out := c
	if out.RetrieveK <= 0 {
		out.RetrieveK = 20
	}
	if out.RerankN <= 0 {
		out.RerankN = 5
	}
	if out.RerankN > out.RetrieveK {
		out.RetrieveK = out.RerankN
	}
	if out.SuggestN <= 0 {
		out.SuggestN = 8
	}
	return out
}

// session pairs one mapping store with one vector index. The pair is the
// unit of isolation: nothing here is ever shared across sessions. The mutex
// serializes ingest and query within the session; different sessions run in
// parallel with no shared locks.
type session struct {
	mu sync.Mutex

	id            string
	state         domain.SessionState
	createdAt     time.Time
	documentCount int
	chunkCount    int
	contextSample string

	store *anonymizer.Store
	index ports.VectorIndex
}

func (s *session) info() *domain.SessionInfo {
	return &domain.SessionInfo{
		ID:            s.id,
		State:         s.state,
		DocumentCount: s.documentCount,
		ChunkCount:    s.chunkCount,
		CreatedAt:     s.createdAt,
	}
}

// SessionManager orchestrates the privacy-preserving pipeline per session:
// ingest (anonymize, chunk, embed, index) and query (anonymize, retrieve,
// rerank, generate, deanonymize). The generation port only ever receives
// anonymized text.
type SessionManager struct {
	engine    *anonymizer.Engine
	factory   ports.IndexFactory
	chunker   ports.Chunker
	embedder  ports.Embedder
	generator ports.AnswerGenerator
	scorer    ports.RerankScorer
	cfg       SessionConfig

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionManager(
	engine *anonymizer.Engine,
	factory ports.IndexFactory,
	chunker ports.Chunker,
	embedder ports.Embedder,
	generator ports.AnswerGenerator,
	scorer ports.RerankScorer,
	cfg SessionConfig,
) *SessionManager {
	return &SessionManager{
		engine:    engine,
		factory:   factory,
		chunker:   chunker,
		embedder:  embedder,
		generator: generator,
		scorer:    scorer,
		cfg:       cfg.normalize(),
		sessions:  make(map[string]*session),
	}
}

func (m *SessionManager) Create(ctx context.Context) (*domain.SessionInfo, error) {
	id := uuid.NewString()
	index, err := m.factory.New(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create session index: %w", err)
	}

	s := &session{
		id:        id,
		state:     domain.SessionEmpty,
		createdAt: time.Now().UTC(),
		store:     anonymizer.NewStore(),
		index:     index,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s.info(), nil
}

func (m *SessionManager) Get(_ context.Context, sessionID string) (*domain.SessionInfo, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// Ingest runs the ingestion path over already-extracted text: anonymize,
// chunk, embed, index. Empty text means nothing to index, not an error.
func (m *SessionManager) Ingest(ctx context.Context, sessionID, documentID, text string) (domain.IngestResult, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return domain.IngestResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return domain.IngestResult{}, domain.WrapError(domain.ErrSessionClosed, "ingest", errors.New(sessionID))
	}

	anonymized, kinds := m.engine.Anonymize(s.store, text)
	if anonymized == "" {
		return domain.IngestResult{KindsFound: kinds}, nil
	}

	texts := m.chunker.Split(anonymized)
	if len(texts) == 0 {
		return domain.IngestResult{KindsFound: kinds}, nil
	}

	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return domain.IngestResult{}, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: documentID,
			Index:      i,
			Text:       t,
			Vector:     vectors[i],
		})
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		return domain.IngestResult{}, fmt.Errorf("index chunks: %w", err)
	}

	s.state = domain.SessionIndexed
	s.documentCount++
	s.chunkCount += len(chunks)
	if len(s.contextSample) < contextSampleLimit {
		s.contextSample += truncateOnRuneBoundary(anonymized, contextSampleLimit-len(s.contextSample))
	}

	return domain.IngestResult{ChunkCount: len(chunks), KindsFound: kinds}, nil
}

// Query runs the question path end to end. Querying before any ingest is
// caller misuse: it returns an empty answer rather than failing.
func (m *SessionManager) Query(ctx context.Context, sessionID, question string) (*domain.Answer, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return nil, domain.WrapError(domain.ErrSessionClosed, "query", errors.New(sessionID))
	}
	if s.index.Size() == 0 {
		slog.Warn("query_before_ingest", "session_id", sessionID)
		return &domain.Answer{SessionID: sessionID}, nil
	}

	anonymizedQuestion, _ := m.engine.Anonymize(s.store, question)

	queryVector, err := m.embedder.EmbedQuery(ctx, anonymizedQuestion)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.index.Search(ctx, queryVector, m.cfg.RetrieveK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	ranked := rerankCandidates(m.scorer, anonymizedQuestion, candidates, m.cfg.RerankN)

	answer, err := m.generator.Generate(ctx, buildAnswerPrompt(anonymizedQuestion, ranked))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		SessionID: sessionID,
		Text:      m.engine.Deanonymize(s.store, answer),
		Sources:   ranked,
	}, nil
}

// Suggest proposes follow-up questions from the session's anonymized context.
// Generation failures fall back to a static list instead of surfacing.
func (m *SessionManager) Suggest(ctx context.Context, sessionID string) ([]string, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return nil, domain.WrapError(domain.ErrSessionClosed, "suggest", errors.New(sessionID))
	}

	raw, err := m.generator.Generate(ctx, buildSuggestPrompt(s.contextSample, m.cfg.SuggestN))
	if err != nil {
		slog.Warn("suggest_generation_failed", "session_id", sessionID, "error", err)
		return fallbackQuestions(m.cfg.SuggestN), nil
	}

	questions := parseSuggestedQuestions(raw, m.cfg.SuggestN)
	if len(questions) == 0 {
		return fallbackQuestions(m.cfg.SuggestN), nil
	}
	return questions, nil
}

func (m *SessionManager) Anonymize(_ context.Context, sessionID, text string) (string, []domain.EntityKind, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return "", nil, domain.WrapError(domain.ErrSessionClosed, "anonymize", errors.New(sessionID))
	}
	anonymized, kinds := m.engine.Anonymize(s.store, text)
	return anonymized, kinds, nil
}

func (m *SessionManager) Deanonymize(_ context.Context, sessionID, text string) (string, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return "", domain.WrapError(domain.ErrSessionClosed, "deanonymize", errors.New(sessionID))
	}
	return m.engine.Deanonymize(s.store, text), nil
}

func (m *SessionManager) PIIReport(_ context.Context, sessionID string) (*domain.PIIReport, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return nil, domain.WrapError(domain.ErrSessionClosed, "pii report", errors.New(sessionID))
	}

	return &domain.PIIReport{
		SessionID: sessionID,
		Counts:    s.store.Counts(),
		Tokens:    s.store.Tokens(),
		Total:     s.store.Len(),
	}, nil
}

// Teardown discards the index and clears the mapping table. The session is
// terminal even when dropping the index fails: the store is emptied and the
// state flips to closed regardless, so no later call can retrieve chunks or
// rebind placeholder tokens against a half-cleared mapping. Tearing down
// twice is a no-op.
func (m *SessionManager) Teardown(ctx context.Context, sessionID string) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return nil
	}

	dropErr := s.index.Drop(ctx)
	s.store.Clear()
	s.state = domain.SessionClosed
	if dropErr != nil {
		return fmt.Errorf("drop session index: %w", dropErr)
	}
	return nil
}

func (m *SessionManager) lookup(sessionID string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errors.New(sessionID))
	}
	return s, nil
}

// truncateOnRuneBoundary cuts s to at most max bytes without splitting a
// multi-byte rune.
func truncateOnRuneBoundary(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
