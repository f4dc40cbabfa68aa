package usecase

import (
	"sort"

	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

// rerankCandidates rescores the retrieved pool with the scorer and keeps the
// top N. Ties fall back to document and chunk order, so reruns over the same
// pool produce the same context.
func rerankCandidates(scorer ports.RerankScorer, question string, candidates []domain.RetrievedChunk, topN int) []domain.RetrievedChunk {
	if len(candidates) == 0 {
		return nil
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	ranked := make([]domain.RetrievedChunk, len(candidates))
	copy(ranked, candidates)

	if scorer != nil {
		for i := range ranked {
			ranked[i].Score = scorer.Score(question, ranked[i].Text)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].DocumentID != ranked[j].DocumentID {
			return ranked[i].DocumentID < ranked[j].DocumentID
		}
		return ranked[i].ChunkIndex < ranked[j].ChunkIndex
	})

	return ranked[:topN]
}
