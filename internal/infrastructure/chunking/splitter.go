package chunking

import "strings"

const (
	defaultChunkSize = 900
	defaultOverlap   = 150
)

// Splitter cuts anonymized document text into overlapping windows. It
// prefers paragraph and sentence boundaries inside the window and falls back
// to a fixed-size cut when the window contains none, so an answer-bearing
// sentence is rarely severed across chunks.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				out = append(out, chunk)
			}
			break
		}

		cut := s.findCut(runes, start, end)
		if chunk := strings.TrimSpace(string(runes[start:cut])); chunk != "" {
			out = append(out, chunk)
		}

		next := cut - s.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return out
}

// findCut returns the exclusive cut position inside (start, maxEnd]. Only the
// second half of the window is searched so boundary cuts cannot produce
// degenerate chunks.
func (s *Splitter) findCut(runes []rune, start, maxEnd int) int {
	searchFrom := start + s.ChunkSize/2

	if cut := lastParagraphBreak(runes, searchFrom, maxEnd); cut > 0 {
		return cut
	}
	if cut := lastSentenceEnd(runes, searchFrom, maxEnd); cut > 0 {
		return cut
	}
	if cut := lastLineBreak(runes, searchFrom, maxEnd); cut > 0 {
		return cut
	}
	return maxEnd
}

func lastParagraphBreak(runes []rune, from, to int) int {
	for i := to - 1; i > from; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return 0
}

func lastSentenceEnd(runes []rune, from, to int) int {
	for i := to - 1; i > from; i-- {
		if !isSentenceEnd(runes[i-1]) {
			continue
		}
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func lastLineBreak(runes []rune, from, to int) int {
	for i := to - 1; i > from; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
