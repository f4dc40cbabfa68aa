package anonymizer

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/mkravets/docveil/internal/core/domain"
)

// tokenPattern recognizes placeholder tokens on the way back out. The
// underscore-delimited KIND_N shape is reserved: no matcher produces it, so
// anonymizing already-anonymized text is a no-op.
var tokenPattern = regexp.MustCompile(`\b(?:EMAIL|PHONE|ID|DATE|NAME|ORG|LOCATION)_\d+\b`)

type Config struct {
	// Heuristics toggles the lower-precision NAME/ORG/LOCATION matchers.
	// Structured kinds are always on.
	Heuristics bool
}

// Engine applies the matcher cascade against a session's mapping Store.
// The Engine itself is stateless and safe to share across sessions; all
// per-session state lives in the Store passed to each call.
type Engine struct {
	matchers []matcher
}

func NewEngine(cfg Config) *Engine {
	return &Engine{matchers: compileMatchers(cfg.Heuristics)}
}

// Anonymize replaces every detected PII span with a placeholder token in a
// single left-to-right rewrite and reports which kinds were found. Token
// reservation is per span, so cancellation between spans never corrupts the
// store: entries already reserved stay valid, the rest were never touched.
func (e *Engine) Anonymize(store *Store, text string) (string, []domain.EntityKind) {
	if text == "" {
		return text, nil
	}

	spans := resolveOverlaps(detect(e.matchers, text))
	if len(spans) == 0 {
		return text, nil
	}

	seen := make(map[domain.EntityKind]bool, len(spans))
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, span := range spans {
		b.WriteString(text[last:span.Start])
		b.WriteString(store.Reserve(span.Value, span.Kind))
		last = span.End
		seen[span.Kind] = true
	}
	b.WriteString(text[last:])

	kinds := make([]domain.EntityKind, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Priority() < kinds[j].Priority() })

	return b.String(), kinds
}

// Deanonymize restores raw values for every token-shaped substring. Tokens
// the store does not know are left as-is and logged: generation output
// occasionally fabricates token-like strings, and the response path should
// degrade rather than fail.
func (e *Engine) Deanonymize(store *Store, text string) string {
	if text == "" {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		value, err := store.Resolve(token)
		if err != nil {
			slog.Warn("unresolved_token", "token", token)
			return token
		}
		return value
	})
}
