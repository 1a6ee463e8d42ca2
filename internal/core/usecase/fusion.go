package usecase

import (
	"sort"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// fusedHit is a policy-level candidate after dense/sparse fusion. The excerpt
// comes from the best-ranked chunk that matched the policy, dense side
// preferred.
type fusedHit struct {
	PolicyID  int64
	Score     float64
	MatchType domain.MatchType
	Excerpt   string
	DocType   string
}

// bestChunkPerPolicy collapses a ranked chunk list to one entry per policy.
// Input must be sorted by score descending, so the first chunk seen for a
// policy is its best.
func bestChunkPerPolicy(hits []domain.ChunkHit) []domain.ChunkHit {
	seen := make(map[int64]struct{}, len(hits))
	best := make([]domain.ChunkHit, 0, len(hits))
	for _, hit := range hits {
		if _, dup := seen[hit.PolicyID]; dup {
			continue
		}
		seen[hit.PolicyID] = struct{}{}
		best = append(best, hit)
	}
	return best
}

// fuseRRF combines the two ranked lists with reciprocal rank fusion:
// score(p) = sum over lists of 1/(k + rank_p). The sum is normalized by its
// theoretical maximum 2/(k+1) so fused scores land in [0, 1] and stay
// comparable with the similarity threshold.
func fuseRRF(dense, sparse []domain.ChunkHit, k int) []fusedHit {
	if k <= 0 {
		k = 60
	}
	denseBest := bestChunkPerPolicy(dense)
	sparseBest := bestChunkPerPolicy(sparse)

	fused := make(map[int64]*fusedHit, len(denseBest)+len(sparseBest))
	for rank, hit := range denseBest {
		fused[hit.PolicyID] = &fusedHit{
			PolicyID:  hit.PolicyID,
			Score:     1 / float64(k+rank+1),
			MatchType: domain.MatchDense,
			Excerpt:   hit.Content,
			DocType:   hit.DocType,
		}
	}
	for rank, hit := range sparseBest {
		contribution := 1 / float64(k+rank+1)
		if entry, ok := fused[hit.PolicyID]; ok {
			entry.Score += contribution
			entry.MatchType = domain.MatchHybrid
			continue
		}
		fused[hit.PolicyID] = &fusedHit{
			PolicyID:  hit.PolicyID,
			Score:     contribution,
			MatchType: domain.MatchSparse,
			Excerpt:   hit.Content,
			DocType:   hit.DocType,
		}
	}

	maxScore := 2 / float64(k+1)
	results := make([]fusedHit, 0, len(fused))
	for _, entry := range fused {
		entry.Score /= maxScore
		results = append(results, *entry)
	}
	sortFused(results)
	return results
}

// fuseWeighted combines the two lists on min-max normalized scores:
// score(p) = denseWeight*norm(dense_p) + sparseWeight*norm(sparse_p), with a
// missing source contributing zero.
func fuseWeighted(dense, sparse []domain.ChunkHit, denseWeight, sparseWeight float64) []fusedHit {
	denseBest := bestChunkPerPolicy(dense)
	sparseBest := bestChunkPerPolicy(sparse)
	denseNorm := normalizeScores(denseBest)
	sparseNorm := normalizeScores(sparseBest)

	fused := make(map[int64]*fusedHit, len(denseBest)+len(sparseBest))
	for _, hit := range denseBest {
		fused[hit.PolicyID] = &fusedHit{
			PolicyID:  hit.PolicyID,
			Score:     denseWeight * denseNorm[hit.PolicyID],
			MatchType: domain.MatchDense,
			Excerpt:   hit.Content,
			DocType:   hit.DocType,
		}
	}
	for _, hit := range sparseBest {
		contribution := sparseWeight * sparseNorm[hit.PolicyID]
		if entry, ok := fused[hit.PolicyID]; ok {
			entry.Score += contribution
			entry.MatchType = domain.MatchHybrid
			continue
		}
		fused[hit.PolicyID] = &fusedHit{
			PolicyID:  hit.PolicyID,
			Score:     contribution,
			MatchType: domain.MatchSparse,
			Excerpt:   hit.Content,
			DocType:   hit.DocType,
		}
	}

	results := make([]fusedHit, 0, len(fused))
	for _, entry := range fused {
		results = append(results, *entry)
	}
	sortFused(results)
	return results
}

// normalizeScores min-max normalizes one source's policy scores to [0, 1]. A
// single-entry (or constant) list normalizes to 1.
func normalizeScores(hits []domain.ChunkHit) map[int64]float64 {
	norm := make(map[int64]float64, len(hits))
	if len(hits) == 0 {
		return norm
	}
	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	spread := maxScore - minScore
	for _, hit := range hits {
		if spread == 0 {
			norm[hit.PolicyID] = 1
			continue
		}
		norm[hit.PolicyID] = (hit.Score - minScore) / spread
	}
	return norm
}

func sortFused(hits []fusedHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].PolicyID < hits[j].PolicyID
	})
}
