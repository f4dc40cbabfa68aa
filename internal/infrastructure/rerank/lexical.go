// Package rerank provides the second-stage scorer applied after vector
// retrieval. The lexical scorer rewards exact token overlap with the query,
// which cosine similarity over embeddings tends to under-weight.
package rerank

import (
	"strings"
	"unicode"
)

type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score returns the fraction of query tokens present in the chunk, in [0, 1].
func (s *LexicalScorer) Score(query, chunk string) float64 {
	queryTokens := toTokenSet(query)
	chunkTokens := toTokenSet(chunk)
	if len(queryTokens) == 0 || len(chunkTokens) == 0 {
		return 0
	}

	matches := 0
	for token := range queryTokens {
		if _, ok := chunkTokens[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTokens))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
