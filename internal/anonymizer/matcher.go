// Package anonymizer detects PII in text and substitutes reversible
// placeholder tokens. Detection is rule/pattern based: a fixed regex table
// for structured kinds (email, phone, id, date) and capitalized-phrase
// heuristics with keyword context for names, organizations and locations.
// Overlapping candidate spans are resolved deterministically so the final
// span set is always non-overlapping.
package anonymizer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mkravets/docveil/internal/core/domain"
)

// matcher pairs a compiled regex with its entity kind. When group is
// positive, only that capture group is treated as the sensitive span
// (keyword prefixes like "Patient:" stay in the text).
type matcher struct {
	re    *regexp.Regexp
	kind  domain.EntityKind
	group int
}

var structuredSpecs = []struct {
	expr  string
	kind  domain.EntityKind
	group int
}{
	{`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, domain.KindEmail, 0},

	// Aadhaar-style 12-digit IDs, optionally grouped in fours.
	{`\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`, domain.KindID, 0},

	// Indian mobile forms first, then generic E.164-like and separated forms.
	{`\(\+91\)[\-\s]?\d{10}\b`, domain.KindPhone, 0},
	{`\+91[\-\s]?\d{10}\b`, domain.KindPhone, 0},
	{`\+\d{1,3}[\-\s]?\d{6,12}\b`, domain.KindPhone, 0},
	{`\b\d{3}[\-.\s]\d{3}[\-.\s]\d{4}\b`, domain.KindPhone, 0},
	{`\b\d{10}\b`, domain.KindPhone, 0},

	{`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`, domain.KindDate, 0},
	{`\b\d{4}[/\-]\d{1,2}[/\-]\d{1,2}\b`, domain.KindDate, 0},
	{`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b`, domain.KindDate, 0},
}

var heuristicSpecs = []struct {
	expr  string
	kind  domain.EntityKind
	group int
}{
	{`\b(?:Mr\.|Mrs\.|Ms\.|Dr\.|Prof\.)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`, domain.KindName, 1},
	{`\b(?:Patient|Doctor|Name|Claimant|Insured|Applicant):\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`, domain.KindName, 1},

	{`\b([A-Z][A-Za-z&]*(?:\s+[A-Z&][A-Za-z&]*)*\s+(?:Hospital|Clinic|Healthcare|Diagnostics|Insurance|Laboratories|Ltd|LLP))\b`, domain.KindOrg, 1},
	{`\b(?:Hospital|Clinic|Insurer|Provider):\s*([A-Z][A-Za-z&\s]+?)(?:\n|,|\.|$)`, domain.KindOrg, 1},

	{`\b\d+[A-Za-z]?\s+[A-Z][A-Za-z\s]+(?:Street|St|Road|Rd|Avenue|Ave|Lane|Ln|Drive|Dr)\b`, domain.KindLocation, 0},
	{`\b(?:Address|Location):\s*([A-Z][A-Za-z0-9\s,.\-]+?)(?:\n|$)`, domain.KindLocation, 1},
}

func compileMatchers(includeHeuristics bool) []matcher {
	out := make([]matcher, 0, len(structuredSpecs)+len(heuristicSpecs))
	for _, s := range structuredSpecs {
		out = append(out, matcher{re: regexp.MustCompile(s.expr), kind: s.kind, group: s.group})
	}
	if includeHeuristics {
		for _, s := range heuristicSpecs {
			out = append(out, matcher{re: regexp.MustCompile(s.expr), kind: s.kind, group: s.group})
		}
	}
	return out
}

// detect runs every matcher over the text and returns the raw candidate set.
// Candidates may overlap; resolveOverlaps produces the final span set.
func detect(matchers []matcher, text string) []domain.DetectedSpan {
	var spans []domain.DetectedSpan
	for _, m := range matchers {
		for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if m.group > 0 && len(loc) > 2*m.group+1 && loc[2*m.group] >= 0 {
				start, end = loc[2*m.group], loc[2*m.group+1]
			}
			value := text[start:end]
			if !plausible(m.kind, value) {
				continue
			}
			spans = append(spans, domain.DetectedSpan{
				Start: start,
				End:   end,
				Kind:  m.kind,
				Value: value,
			})
		}
	}
	return spans
}

// plausible filters out regex hits that fail kind-specific sanity checks,
// keeping the heuristic kinds from swallowing structural text.
func plausible(kind domain.EntityKind, value string) bool {
	switch kind {
	case domain.KindPhone:
		return len(digitsOf(value)) >= 10
	case domain.KindID:
		return len(digitsOf(value)) == 12
	case domain.KindName:
		return len(value) > 2
	case domain.KindOrg:
		return len(strings.TrimSpace(value)) > 3
	case domain.KindLocation:
		return len(strings.TrimSpace(value)) > 5
	default:
		return value != ""
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveOverlaps selects a non-overlapping subset of candidates using a
// total deterministic order: kind priority, then span length, then earlier
// start. The result is sorted by start offset.
func resolveOverlaps(candidates []domain.DetectedSpan) []domain.DetectedSpan {
	if len(candidates) == 0 {
		return nil
	}

	ordered := make([]domain.DetectedSpan, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Kind.Priority() != b.Kind.Priority() {
			return a.Kind.Priority() < b.Kind.Priority()
		}
		if a.End-a.Start != b.End-b.Start {
			return a.End-a.Start > b.End-b.Start
		}
		return a.Start < b.Start
	})

	accepted := make([]domain.DetectedSpan, 0, len(ordered))
	for _, candidate := range ordered {
		if !overlapsAny(accepted, candidate) {
			accepted = append(accepted, candidate)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

func overlapsAny(accepted []domain.DetectedSpan, s domain.DetectedSpan) bool {
	for _, a := range accepted {
		if s.Start < a.End && a.Start < s.End {
			return true
		}
	}
	return false
}
