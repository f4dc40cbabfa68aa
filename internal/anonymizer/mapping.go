package anonymizer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mkravets/docveil/internal/core/domain"
)

// Store is the session-scoped bidirectional token<->value table. Exactly one
// session owns a Store; it grows monotonically until Clear at teardown.
// Reservations are atomic: a caller abandoning a request mid-flight never
// leaves a half-recorded entry behind.
type Store struct {
	mu           sync.Mutex
	tokenToValue map[string]string
	valueToToken map[string]string
	counters     map[domain.EntityKind]int
}

func NewStore() *Store {
	return &Store{
		tokenToValue: make(map[string]string),
		valueToToken: make(map[string]string),
		counters:     make(map[domain.EntityKind]int),
	}
}

// Reserve returns the token for a raw value, allocating the next per-kind
// counter on first sight. The same raw value always maps to the same token
// within a session, so an entity seen in a document and again in a question
// resolves identically.
func (s *Store) Reserve(value string, kind domain.EntityKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.valueToToken[value]; ok {
		return token
	}

	s.counters[kind]++
	token := fmt.Sprintf("%s_%d", kind, s.counters[kind])
	s.valueToToken[value] = token
	s.tokenToValue[token] = value
	return token
}

// Resolve returns the raw value behind a token. A token never reserved in
// this session yields ErrUnknownToken: either generation fabricated a
// token-shaped string or text leaked across sessions.
func (s *Store) Resolve(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.tokenToValue[token]
	if !ok {
		return "", domain.WrapError(domain.ErrUnknownToken, "resolve token", errors.New(token))
	}
	return value, nil
}

// Clear drops every entry. Called exactly once, at session teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenToValue = make(map[string]string)
	s.valueToToken = make(map[string]string)
	s.counters = make(map[domain.EntityKind]int)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokenToValue)
}

// Counts reports how many distinct values are mapped per kind.
func (s *Store) Counts() map[domain.EntityKind]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.EntityKind]int, len(s.counters))
	for kind, n := range s.counters {
		out[kind] = n
	}
	return out
}

// Tokens returns every allocated token sorted by kind priority, then by
// counter, giving reports a stable order.
func (s *Store) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.tokenToValue))
	for token := range s.tokenToValue {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, ni := splitToken(out[i])
		kj, nj := splitToken(out[j])
		if ki.Priority() != kj.Priority() {
			return ki.Priority() < kj.Priority()
		}
		return ni < nj
	})
	return out
}

func splitToken(token string) (domain.EntityKind, int) {
	idx := strings.LastIndex(token, "_")
	if idx < 0 {
		return domain.EntityKind(token), 0
	}
	n, _ := strconv.Atoi(token[idx+1:])
	return domain.EntityKind(token[:idx]), n
}
