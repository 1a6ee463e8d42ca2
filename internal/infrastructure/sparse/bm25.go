package sparse

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

const (
	bm25K1      = 1.5
	bm25B       = 0.75
	idfEpsilon  = 0.25
	boostedFreq = 2
)

// Index is an in-memory BM25 index over the full chunk corpus. The build is
// lazy: the first caller of EnsureBuilt scrolls the vector store and builds
// the postings under a build lock; afterwards the index is immutable and
// reads run concurrently.
type Index struct {
	store    ports.VectorStore
	cfg      domain.SearchConfig
	logger   *slog.Logger
	boosted  map[string]struct{}
	buildMu  sync.Mutex
	mu       sync.RWMutex
	built    bool
	docCount int
	avgLen   float64
	lengths  map[string]int
	postings map[string]map[string]int
	chunks   map[string]domain.DocumentChunk
}

func NewIndex(store ports.VectorStore, cfg domain.SearchConfig, logger *slog.Logger) *Index {
	boosted := make(map[string]struct{}, len(cfg.KeywordThresholdAdjustments))
	for keyword := range cfg.KeywordThresholdAdjustments {
		boosted[keyword] = struct{}{}
	}
	return &Index{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		boosted: boosted,
	}
}

// EnsureBuilt builds the index on first use. Concurrent callers serialize on
// the build lock; a failed build leaves the index unbuilt so the next caller
// retries.
func (idx *Index) EnsureBuilt(ctx context.Context) error {
	idx.mu.RLock()
	built := idx.built
	idx.mu.RUnlock()
	if built {
		return nil
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()
	if idx.Built() {
		return nil
	}

	start := time.Now()
	chunks, err := idx.store.Scroll(ctx, domain.SearchFilter{}, 0)
	if err != nil {
		return domain.WrapError(domain.ErrUpstream, "sparse: scroll corpus", err)
	}

	lengths := make(map[string]int, len(chunks))
	postings := make(map[string]map[string]int)
	byID := make(map[string]domain.DocumentChunk, len(chunks))
	totalLen := 0

	for _, chunk := range chunks {
		if chunk.ID == "" || chunk.Content == "" {
			continue
		}
		tokens := Tokenize(chunk.Content)

		freq := make(map[string]int, len(tokens))
		docLen := 0
		for _, token := range tokens {
			count := 1
			if _, important := idx.boosted[token]; important {
				count = boostedFreq
			}
			freq[token] += count
			docLen += count
		}

		byID[chunk.ID] = chunk
		lengths[chunk.ID] = docLen
		totalLen += docLen
		for term, count := range freq {
			posting, ok := postings[term]
			if !ok {
				posting = make(map[string]int)
				postings[term] = posting
			}
			posting[chunk.ID] = count
		}
	}

	idx.mu.Lock()
	idx.docCount = len(byID)
	if idx.docCount > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.docCount)
	}
	idx.lengths = lengths
	idx.postings = postings
	idx.chunks = byID
	idx.built = true
	idx.mu.Unlock()

	idx.logger.Info("bm25_index_built",
		"documents", len(byID),
		"terms", len(postings),
		"avg_doc_length", idx.avgLen,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (idx *Index) Built() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.built
}

func (idx *Index) Tokenize(text string) []string {
	return Tokenize(text)
}

// Search scores the built corpus against the query and returns the top-k
// chunks above the sparse score floor, ordered by score descending with ties
// broken by ascending chunk id.
func (idx *Index) Search(query string, topK int) []domain.ChunkHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !idx.built || idx.docCount == 0 {
		return nil
	}

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range queryTokens {
		posting, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.idf(len(posting))
		for chunkID, termFreq := range posting {
			scores[chunkID] += idf * idx.termScore(termFreq, idx.lengths[chunkID])
		}
	}

	hits := make([]domain.ChunkHit, 0, len(scores))
	for chunkID, score := range scores {
		if score < idx.cfg.SparseMinScore {
			continue
		}
		chunk := idx.chunks[chunkID]
		hits = append(hits, domain.ChunkHit{
			ChunkID:    chunk.ID,
			PolicyID:   chunk.PolicyID,
			ChunkIndex: chunk.ChunkIndex,
			DocType:    chunk.DocType,
			Content:    chunk.Content,
			Score:      score,
			MatchType:  domain.MatchSparse,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func (idx *Index) idf(docFreq int) float64 {
	if docFreq == 0 {
		return 0
	}
	idf := math.Log((float64(idx.docCount)-float64(docFreq)+0.5)/(float64(docFreq)+0.5) + 1)
	return math.Max(idf, idfEpsilon)
}

func (idx *Index) termScore(termFreq, docLen int) float64 {
	if docLen == 0 || idx.avgLen == 0 {
		return 0
	}
	tf := float64(termFreq)
	numerator := tf * (bm25K1 + 1)
	denominator := tf + bm25K1*(1-bm25B+bm25B*float64(docLen)/idx.avgLen)
	return numerator / denominator
}
