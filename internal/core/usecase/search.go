package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

const (
	sourceInternal = "internal"
	sourceWeb      = "web"

	excerptLimit    = 200
	evidenceLimit   = 10
	webQueryTopKeys = 3
)

var errEmptyQuery = errors.New("query must not be empty")

// SearchDeps wires the hybrid-search workflow.
type SearchDeps struct {
	Embedder   ports.Embedder
	Vectors    ports.VectorStore
	Sparse     ports.SparseIndex
	Policies   ports.PolicyStore
	Web        ports.WebSearcher
	Events     ports.EventPublisher
	Config     domain.SearchConfig
	WebTimeout time.Duration
	Logger     *slog.Logger
}

// SearchUseCase runs the search workflow: dynamic threshold, concurrent
// dense+sparse retrieval, fusion, one threshold-lowering retry, then the web
// fallback when the internal result set is too weak.
type SearchUseCase struct {
	deps SearchDeps
}

func NewSearchUseCase(deps SearchDeps) *SearchUseCase {
	if deps.Config.FinalLimit <= 0 {
		deps.Config = domain.DefaultSearchConfig()
	}
	return &SearchUseCase{deps: deps}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, filter domain.SearchFilter) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errEmptyQuery)
	}

	start := time.Now()
	cfg := uc.deps.Config
	keywords := extractKeywords(query)
	threshold := cfg.CalculateThreshold(keywords, filter.Region, filter.Category, -1)

	hits, candidates := uc.retrieveInternal(ctx, query, filter, threshold)
	if len(hits) < cfg.TargetMinResults {
		adjusted := cfg.CalculateThreshold(keywords, filter.Region, filter.Category, len(hits))
		if adjusted < threshold {
			retryHits, retryCandidates := uc.retrieveInternal(ctx, query, filter, adjusted)
			if len(retryHits) > len(hits) {
				hits, candidates, threshold = retryHits, retryCandidates, adjusted
			}
		}
	}
	if len(hits) > cfg.FinalLimit {
		hits = hits[:cfg.FinalLimit]
	}

	internalCount := len(hits)
	topScore, avgScore, minScore := scoreStats(hits)
	webTriggered := cfg.ShouldTriggerWebSearch(internalCount, topScore)

	var webResults []domain.WebResult
	if webTriggered && uc.deps.Web != nil {
		webResults = uc.searchWeb(ctx, buildWebQuery(keywords, query, filter))
	}
	// Web hits only join the policy list on unfiltered queries; a filtered
	// search promises every row satisfies the filter and web pages carry no
	// region or category.
	if len(webResults) > 0 && filter.Region == "" && filter.Category == "" {
		for idx, result := range webResults {
			hits = append(hits, webPolicyHit(idx, result))
		}
	}

	// Empty collections marshal as [] rather than null.
	if hits == nil {
		hits = []domain.PolicyHit{}
	}
	if webResults == nil {
		webResults = []domain.WebResult{}
	}

	result := &domain.SearchResult{
		Query:    query,
		Policies: hits,
		Metrics: domain.SearchMetrics{
			TotalCandidates:    candidates,
			FinalCount:         internalCount,
			TopScore:           topScore,
			AvgScore:           avgScore,
			MinScore:           minScore,
			ThresholdUsed:      threshold,
			WebSearchTriggered: webTriggered,
			WebSearchCount:     len(webResults),
			SearchTimeMs:       time.Since(start).Milliseconds(),
			SufficiencyReason:  sufficiencyReason(internalCount, topScore, webTriggered),
		},
		Evidence:   searchEvidence(hits[:internalCount], webResults),
		WebSources: webResults,
		Summary:    searchSummary(query, hits, internalCount, topScore, len(webResults)),
	}

	if uc.deps.Events != nil {
		_ = uc.deps.Events.PublishSearchCompleted(ctx, ports.SearchCompletedEvent{
			Query:              query,
			FinalCount:         internalCount,
			TopScore:           topScore,
			WebSearchTriggered: webTriggered,
			DurationMs:         result.Metrics.SearchTimeMs,
		})
	}

	uc.deps.Logger.Info("search_completed",
		"query", query,
		"final_count", internalCount,
		"top_score", topScore,
		"threshold", threshold,
		"web_search_triggered", webTriggered,
		"duration_ms", result.Metrics.SearchTimeMs,
	)
	return result, nil
}

// retrieveInternal runs dense and sparse retrieval concurrently, fuses the
// two lists and attaches policy metadata. Either source failing degrades to
// the other; both failing degrades to an empty internal list.
func (uc *SearchUseCase) retrieveInternal(ctx context.Context, query string, filter domain.SearchFilter, threshold float64) ([]domain.PolicyHit, int) {
	cfg := uc.deps.Config

	var denseHits, sparseHits []domain.ChunkHit
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vector, err := uc.deps.Embedder.EmbedQuery(ctx, query)
		if err != nil {
			uc.deps.Logger.Warn("dense_retrieval_failed", "stage", "embed", "error", err)
			return
		}
		hits, err := uc.deps.Vectors.Search(ctx, vector, cfg.CandidatesPerSource, filter, threshold)
		if err != nil {
			uc.deps.Logger.Warn("dense_retrieval_failed", "stage", "search", "error", err)
			return
		}
		denseHits = hits
	}()
	go func() {
		defer wg.Done()
		if err := uc.deps.Sparse.EnsureBuilt(ctx); err != nil {
			uc.deps.Logger.Warn("sparse_retrieval_failed", "error", err)
			return
		}
		sparseHits = uc.deps.Sparse.Search(query, cfg.CandidatesPerSource)
	}()
	wg.Wait()

	var fused []fusedHit
	if cfg.FusionMode == domain.FusionWeighted {
		fused = fuseWeighted(denseHits, sparseHits, cfg.DenseWeight, cfg.SparseWeight)
	} else {
		fused = fuseRRF(denseHits, sparseHits, cfg.RRFK)
	}
	kept := fused[:0]
	for _, hit := range fused {
		if hit.Score >= threshold {
			kept = append(kept, hit)
		}
	}

	return uc.attachMetadata(ctx, kept, filter), len(denseHits) + len(sparseHits)
}

// attachMetadata joins fused candidates with policy rows and applies the
// metadata-level filters the sparse side cannot push down. Candidates whose
// policy row is gone are dropped with a warning.
func (uc *SearchUseCase) attachMetadata(ctx context.Context, fused []fusedHit, filter domain.SearchFilter) []domain.PolicyHit {
	if len(fused) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(fused))
	for _, hit := range fused {
		ids = append(ids, hit.PolicyID)
	}
	records, err := uc.deps.Policies.LookupPolicies(ctx, ids)
	if err != nil {
		uc.deps.Logger.Warn("policy_metadata_lookup_failed", "error", err)
		return nil
	}

	hits := make([]domain.PolicyHit, 0, len(fused))
	for _, candidate := range fused {
		record, ok := records[candidate.PolicyID]
		if !ok {
			uc.deps.Logger.Warn("policy_metadata_missing", "policy_id", candidate.PolicyID)
			continue
		}
		if filter.Region != "" && record.Region != filter.Region {
			continue
		}
		if filter.Category != "" && record.Category != filter.Category {
			continue
		}
		if filter.TargetGroup != "" && !strings.Contains(record.ApplyTarget, filter.TargetGroup) {
			continue
		}
		hits = append(hits, domain.PolicyHit{
			Policy:         record,
			Score:          candidate.Score,
			MatchType:      candidate.MatchType,
			MatchedExcerpt: truncateRunes(candidate.Excerpt, excerptLimit),
			SourceType:     sourceInternal,
			URL:            record.URL,
		})
	}
	return hits
}

// searchWeb is the fallback web call: one attempt under its own deadline, any
// failure degrades to no web results.
func (uc *SearchUseCase) searchWeb(ctx context.Context, query string) []domain.WebResult {
	if uc.deps.WebTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.deps.WebTimeout)
		defer cancel()
	}
	results, err := uc.deps.Web.Search(ctx, query, uc.deps.Config.WebSearchMaxResults)
	if err != nil {
		uc.deps.Logger.Warn("web_search_failed", "query", query, "error", err)
		return nil
	}
	return results
}

func buildWebQuery(keywords []string, query string, filter domain.SearchFilter) string {
	parts := make([]string, 0, webQueryTopKeys+3)
	if len(keywords) > webQueryTopKeys {
		keywords = keywords[:webQueryTopKeys]
	}
	if len(keywords) == 0 {
		parts = append(parts, query)
	} else {
		parts = append(parts, keywords...)
	}
	if filter.Region != "" && filter.Region != "전국" {
		parts = append(parts, filter.Region)
	}
	if filter.TargetGroup != "" {
		parts = append(parts, filter.TargetGroup)
	}
	parts = append(parts, "정부 지원 사업")
	return strings.Join(parts, " ")
}

// webPolicyHit converts one web result into a pseudo policy row. Synthetic
// negative ids keep web rows from colliding with real policies.
func webPolicyHit(idx int, result domain.WebResult) domain.PolicyHit {
	score := result.Score
	if score <= 0 {
		score = 0.5
	}
	return domain.PolicyHit{
		Policy: domain.PolicyRecord{
			ID:                 int64(-1000 - idx),
			Name:               result.Title,
			Region:             "웹 검색",
			Category:           "웹 검색 결과",
			Overview:           truncateRunes(result.Snippet, excerptLimit),
			ApplyTarget:        "웹 검색 결과 - 자세한 내용은 출처 링크를 확인하세요",
			SupportDescription: result.Snippet,
		},
		Score:          score,
		MatchedExcerpt: truncateRunes(result.Snippet, excerptLimit),
		SourceType:     sourceWeb,
		URL:            result.URL,
	}
}

func scoreStats(hits []domain.PolicyHit) (top, avg, min float64) {
	if len(hits) == 0 {
		return 0, 0, 0
	}
	min = hits[0].Score
	for _, hit := range hits {
		if hit.Score > top {
			top = hit.Score
		}
		if hit.Score < min {
			min = hit.Score
		}
		avg += hit.Score
	}
	avg /= float64(len(hits))
	return top, avg, min
}

func searchEvidence(internal []domain.PolicyHit, webResults []domain.WebResult) []domain.Evidence {
	if len(internal) > evidenceLimit {
		internal = internal[:evidenceLimit]
	}
	evidence := make([]domain.Evidence, 0, len(internal)+len(webResults))
	for _, hit := range internal {
		evidence = append(evidence, domain.Evidence{
			Type:     domain.EvidenceInternal,
			Source:   hit.Policy.Name,
			Content:  hit.MatchedExcerpt,
			Score:    hit.Score,
			URL:      fmt.Sprintf("/policy/%d", hit.Policy.ID),
			LinkType: domain.LinkPolicyDetail,
			PolicyID: hit.Policy.ID,
		})
	}
	for _, result := range webResults {
		evidence = append(evidence, domain.Evidence{
			Type:        domain.EvidenceWeb,
			Source:      result.Title,
			Content:     truncateRunes(result.Snippet, excerptLimit),
			Score:       result.Score,
			URL:         result.URL,
			LinkType:    domain.LinkExternal,
			FetchedDate: result.FetchedDate,
		})
	}
	return evidence
}

func sufficiencyReason(internalCount int, topScore float64, webTriggered bool) string {
	if webTriggered {
		return fmt.Sprintf("내부 검색 결과 부족 (결과: %d건, 최고 점수: %.2f). 웹 검색으로 보충합니다.", internalCount, topScore)
	}
	return fmt.Sprintf("내부 검색 결과 충분 (결과: %d건, 최고 점수: %.2f).", internalCount, topScore)
}

func searchSummary(query string, hits []domain.PolicyHit, internalCount int, topScore float64, webCount int) string {
	if internalCount == 0 {
		if webCount > 0 {
			return fmt.Sprintf("'%s'에 대한 내부 정책을 찾지 못해 웹 검색 결과 %d건을 제공합니다.", query, webCount)
		}
		return fmt.Sprintf("'%s'에 대한 검색 결과가 없습니다.", query)
	}

	summary := fmt.Sprintf("'%s' 검색 결과 %d건을 찾았습니다.", query, internalCount)
	if topScore >= 0.5 {
		summary += fmt.Sprintf(" '%s'이(가) 가장 관련도가 높습니다 (유사도: %.0f%%).", hits[0].Policy.Name, topScore*100)
	}
	if webCount > 0 {
		summary += fmt.Sprintf(" 웹 검색으로 %d건의 추가 정보를 확인했습니다.", webCount)
	}
	return summary
}
