package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mkravets/docveil/internal/anonymizer"
	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

type indexFake struct {
	chunks  []domain.Chunk
	dropped bool
	addErr  error
	dropErr error
}

func (f *indexFake) Add(_ context.Context, chunks []domain.Chunk) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *indexFake) Search(_ context.Context, queryVector []float32, k int) ([]domain.RetrievedChunk, error) {
	out := make([]domain.RetrievedChunk, 0, len(f.chunks))
	for _, c := range f.chunks {
		var dot float64
		for i := range queryVector {
			if i < len(c.Vector) {
				dot += float64(queryVector[i]) * float64(c.Vector[i])
			}
		}
		out = append(out, domain.RetrievedChunk{
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Score:      dot,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func (f *indexFake) Size() int { return len(f.chunks) }

func (f *indexFake) Drop(context.Context) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = true
	f.chunks = nil
	return nil
}

type factoryFake struct {
	indexes map[string]*indexFake
}

func (f *factoryFake) New(_ context.Context, sessionID string) (ports.VectorIndex, error) {
	if f.indexes == nil {
		f.indexes = make(map[string]*indexFake)
	}
	idx := &indexFake{}
	f.indexes[sessionID] = idx
	return idx, nil
}

type keywordEmbedderFake struct{}

func (keywordEmbedderFake) embed(text string) []float32 {
	t := strings.ToLower(text)
	v := []float32{0.1, 0.1, 0.1}
	if strings.Contains(t, "deadline") {
		v[0] = 1
	}
	if strings.Contains(t, "premium") {
		v[1] = 1
	}
	if strings.Contains(t, "exclusion") {
		v[2] = 1
	}
	return v
}

func (f keywordEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, f.embed(t))
	}
	return out, nil
}

func (f keywordEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

type generatorFake struct {
	prompts []string
	answer  string
	err     error
}

func (f *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type paragraphChunkerFake struct{}

func (paragraphChunkerFake) Split(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type overlapScorerFake struct{}

func (overlapScorerFake) Score(query, chunk string) float64 {
	q := strings.Fields(strings.ToLower(query))
	c := strings.ToLower(chunk)
	matches := 0
	for _, w := range q {
		if strings.Contains(c, strings.Trim(w, "?.,")) {
			matches++
		}
	}
	if len(q) == 0 {
		return 0
	}
	return float64(matches) / float64(len(q))
}

func newTestManager(gen *generatorFake) (*SessionManager, *factoryFake) {
	factory := &factoryFake{}
	m := NewSessionManager(
		anonymizer.NewEngine(anonymizer.Config{Heuristics: true}),
		factory,
		paragraphChunkerFake{},
		keywordEmbedderFake{},
		gen,
		overlapScorerFake{},
		SessionConfig{RetrieveK: 10, RerankN: 2},
	)
	return m, factory
}

const policyText = `The claim deadline is 30 days after discharge from the hospital.

Monthly premium payments are due on the first business day.

Cosmetic procedures are listed under the exclusion schedule.`

func TestQueryBeforeIngestReturnsEmptyAnswer(t *testing.T) {
	gen := &generatorFake{answer: "unused"}
	m, _ := newTestManager(gen)

	info, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if info.State != domain.SessionEmpty {
		t.Fatalf("expected empty state, got %s", info.State)
	}

	ans, err := m.Query(context.Background(), info.ID, "What is the claim deadline?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if ans.Text != "" || len(ans.Sources) != 0 {
		t.Fatalf("expected empty answer, got %+v", ans)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("generation must not run against an empty index")
	}
}

func TestIngestThenQueryRetrievesRelevantChunk(t *testing.T) {
	gen := &generatorFake{answer: "The claim deadline is 30 days after discharge."}
	m, _ := newTestManager(gen)

	info, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := m.Ingest(context.Background(), info.ID, "doc-1", policyText)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.ChunkCount != 3 {
		t.Fatalf("expected 3 chunks, got %d", result.ChunkCount)
	}

	info, err = m.Get(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.State != domain.SessionIndexed {
		t.Fatalf("expected indexed state, got %s", info.State)
	}

	ans, err := m.Query(context.Background(), info.ID, "What is the claim deadline?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(ans.Sources) == 0 {
		t.Fatalf("expected retrieved sources")
	}
	if !strings.Contains(ans.Sources[0].Text, "claim deadline is 30 days") {
		t.Fatalf("expected deadline chunk as top source, got %q", ans.Sources[0].Text)
	}
}

func TestGeneratorOnlySeesAnonymizedText(t *testing.T) {
	gen := &generatorFake{answer: "Reply to EMAIL_1 and call PHONE_1, says NAME_1."}
	m, _ := newTestManager(gen)

	info, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	text := "Contact Dr. John Doe at john@example.com or +91-9876543210 about the claim deadline."
	if _, err := m.Ingest(context.Background(), info.ID, "doc-1", text); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	ans, err := m.Query(context.Background(), info.ID, "What is the claim deadline for john@example.com?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	for _, prompt := range gen.prompts {
		for _, raw := range []string{"john@example.com", "9876543210", "John Doe"} {
			if strings.Contains(prompt, raw) {
				t.Fatalf("raw value %q leaked into generation prompt", raw)
			}
		}
	}

	for _, raw := range []string{"john@example.com", "+91-9876543210", "John Doe"} {
		if !strings.Contains(ans.Text, raw) {
			t.Fatalf("expected %q restored in answer, got %q", raw, ans.Text)
		}
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	m, factory := newTestManager(gen)

	a, _ := m.Create(context.Background())
	b, _ := m.Create(context.Background())

	if _, err := m.Ingest(context.Background(), a.ID, "doc-a", "Reach me at jane@example.com about the premium."); err != nil {
		t.Fatalf("Ingest(a) error = %v", err)
	}

	infoB, err := m.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Get(b) error = %v", err)
	}
	if infoB.State != domain.SessionEmpty || infoB.ChunkCount != 0 {
		t.Fatalf("session b must be untouched, got %+v", infoB)
	}
	if factory.indexes[b.ID].Size() != 0 {
		t.Fatalf("session b index must stay empty")
	}

	report, err := m.PIIReport(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("PIIReport(b) error = %v", err)
	}
	if report.Total != 0 {
		t.Fatalf("session b mapping table must be empty, got %d entries", report.Total)
	}

	// The same value starts a fresh counter in each session.
	anonA, _, err := m.Anonymize(context.Background(), a.ID, "jane@example.com")
	if err != nil {
		t.Fatalf("Anonymize(a) error = %v", err)
	}
	anonB, _, err := m.Anonymize(context.Background(), b.ID, "jane@example.com")
	if err != nil {
		t.Fatalf("Anonymize(b) error = %v", err)
	}
	if anonA != "EMAIL_1" || anonB != "EMAIL_1" {
		t.Fatalf("expected independent counters, got %q and %q", anonA, anonB)
	}
}

func TestPIIReportCounts(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	m, _ := newTestManager(gen)

	info, _ := m.Create(context.Background())
	if _, err := m.Ingest(context.Background(), info.ID, "doc-1",
		"Write to a@example.com and b@example.com or call +91-9876543210."); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	report, err := m.PIIReport(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("PIIReport() error = %v", err)
	}
	if report.Counts[domain.KindEmail] != 2 {
		t.Fatalf("expected 2 emails, got %d", report.Counts[domain.KindEmail])
	}
	if report.Counts[domain.KindPhone] != 1 {
		t.Fatalf("expected 1 phone, got %d", report.Counts[domain.KindPhone])
	}
	if report.Total != 3 || len(report.Tokens) != 3 {
		t.Fatalf("unexpected report totals: %+v", report)
	}
}

func TestTeardownClosesSession(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	m, factory := newTestManager(gen)

	info, _ := m.Create(context.Background())
	if _, err := m.Ingest(context.Background(), info.ID, "doc-1", policyText); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if err := m.Teardown(context.Background(), info.ID); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if !factory.indexes[info.ID].dropped {
		t.Fatalf("expected index dropped")
	}

	// Repeat teardown is a no-op.
	if err := m.Teardown(context.Background(), info.ID); err != nil {
		t.Fatalf("second Teardown() error = %v", err)
	}

	if _, err := m.Ingest(context.Background(), info.ID, "doc-2", "more"); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on ingest, got %v", err)
	}
	if _, err := m.Query(context.Background(), info.ID, "anything"); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on query, got %v", err)
	}
	if _, err := m.PIIReport(context.Background(), info.ID); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on report, got %v", err)
	}

	got, err := m.Get(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != domain.SessionClosed {
		t.Fatalf("expected closed state, got %s", got.State)
	}
}

func TestUnknownSession(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	m, _ := newTestManager(gen)

	if _, err := m.Get(context.Background(), "nope"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := m.Query(context.Background(), "nope", "q"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSuggestFallsBackOnGeneratorError(t *testing.T) {
	gen := &generatorFake{err: errors.New("model down")}
	m, _ := newTestManager(gen)

	info, _ := m.Create(context.Background())
	questions, err := m.Suggest(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(questions) == 0 {
		t.Fatalf("expected fallback questions")
	}
}

func TestSuggestParsesNumberedList(t *testing.T) {
	gen := &generatorFake{answer: "1. What is the claim deadline?\n2. How are premiums paid?\nnot a question line"}
	m, _ := newTestManager(gen)

	info, _ := m.Create(context.Background())
	questions, err := m.Suggest(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 parsed questions, got %v", questions)
	}
	if questions[0] != "What is the claim deadline?" {
		t.Fatalf("unexpected first question: %q", questions[0])
	}
}

func TestTeardownIsTerminalWhenDropFails(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	m, factory := newTestManager(gen)

	info, _ := m.Create(context.Background())
	if _, err := m.Ingest(context.Background(), info.ID, "doc-1", policyText); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	factory.indexes[info.ID].dropErr = errors.New("backend unavailable")

	if err := m.Teardown(context.Background(), info.ID); err == nil {
		t.Fatalf("expected drop error to surface")
	}

	// The session is closed regardless: nothing may retrieve chunks or
	// rebind tokens against the emptied mapping table.
	if _, err := m.Query(context.Background(), info.ID, "anything"); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on query, got %v", err)
	}
	if _, err := m.PIIReport(context.Background(), info.ID); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on report, got %v", err)
	}

	got, err := m.Get(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != domain.SessionClosed {
		t.Fatalf("expected closed state, got %s", got.State)
	}

	if err := m.Teardown(context.Background(), info.ID); err != nil {
		t.Fatalf("repeat Teardown() error = %v", err)
	}
}

func TestSuggestPromptStaysValidUTF8OnSampleTruncation(t *testing.T) {
	gen := &generatorFake{answer: "1. What is covered?"}
	m, _ := newTestManager(gen)

	info, _ := m.Create(context.Background())
	// 700 three-byte runes overflow the sample cap at a non-rune offset.
	if _, err := m.Ingest(context.Background(), info.ID, "doc-1", strings.Repeat("€", 700)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if _, err := m.Suggest(context.Background(), info.ID); err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one generated prompt, got %d", len(gen.prompts))
	}
	if !utf8.ValidString(gen.prompts[0]) {
		t.Fatalf("suggestion prompt contains invalid UTF-8")
	}
}
