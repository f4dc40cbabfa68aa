package usecase

import (
	"fmt"
	"strings"

	"github.com/mkravets/docveil/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.RetrievedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] doc=%s chunk=%d score=%.3f\n%s\n\n",
			idx+1,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Score,
			chunk.Text,
		))
	}

	return fmt.Sprintf(`Answer the user question only from the context below.
Placeholder tokens like EMAIL_1 or NAME_2 stand for redacted values; reuse
them verbatim in your answer instead of inventing names or contacts.
If the context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}

func buildSuggestPrompt(contextSample string, n int) string {
	return fmt.Sprintf(`Based on the document excerpt below, suggest %d relevant questions
that users commonly ask about such a document.

Questions must be specific to the document, practical, and cover different
aspects (financial, legal, timeline, risks).

Return exactly %d questions as a numbered list:
1. [Question 1]
2. [Question 2]
...

Document excerpt:
%s
`, n, n, contextSample)
}

// parseSuggestedQuestions pulls questions out of a numbered or bulleted list.
// Lines shorter than ten characters after stripping markers are discarded as
// noise.
func parseSuggestedQuestions(raw string, n int) []string {
	questions := make([]string, 0, n)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := line[0]
		if !(first >= '0' && first <= '9') && first != '-' && !strings.HasPrefix(line, "•") {
			continue
		}
		question := line
		if i := strings.Index(line, "."); i >= 0 && first >= '0' && first <= '9' {
			question = line[i+1:]
		} else {
			question = strings.TrimLeft(line, "-• ")
		}
		question = strings.TrimSpace(question)
		if len(question) <= 10 {
			continue
		}
		questions = append(questions, question)
		if len(questions) == n {
			break
		}
	}
	return questions
}

var defaultQuestions = []string{
	"What are the main obligations of each party?",
	"What are the payment terms and deadlines?",
	"How can this agreement be terminated?",
	"What happens if someone breaches the contract?",
	"Are there any important deadlines I need to know?",
	"What are the potential risks in this agreement?",
	"Can this agreement be modified?",
	"What should I do next after signing?",
}

func fallbackQuestions(n int) []string {
	if n <= 0 || n > len(defaultQuestions) {
		n = len(defaultQuestions)
	}
	out := make([]string, n)
	copy(out, defaultQuestions[:n])
	return out
}
