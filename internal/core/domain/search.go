package domain

type MatchType string

const (
	MatchDense  MatchType = "dense"
	MatchSparse MatchType = "sparse"
	MatchHybrid MatchType = "hybrid"
)

// ChunkHit is a chunk-level retrieval result from one source (dense or
// sparse) or from fusion.
type ChunkHit struct {
	ChunkID    string
	PolicyID   int64
	ChunkIndex int
	DocType    string
	Content    string
	Score      float64
	MatchType  MatchType
}

// PolicyHit is a policy-level search result after chunk aggregation: the best
// chunk per policy carries its excerpt and fused score forward.
type PolicyHit struct {
	Policy         PolicyRecord `json:"policy"`
	Score          float64      `json:"score"`
	MatchType      MatchType    `json:"match_type"`
	MatchedExcerpt string       `json:"matched_excerpt"`
	SourceType     string       `json:"source_type"`
	URL            string       `json:"url,omitempty"`
}

// SearchFilter narrows retrieval by payload equality.
type SearchFilter struct {
	PolicyID    int64
	Region      string
	Category    string
	TargetGroup string
}

// SearchMetrics captures the quality of one search-workflow run.
type SearchMetrics struct {
	TotalCandidates    int     `json:"total_candidates"`
	FinalCount         int     `json:"final_count"`
	TopScore           float64 `json:"top_score"`
	AvgScore           float64 `json:"avg_score"`
	MinScore           float64 `json:"min_score"`
	ThresholdUsed      float64 `json:"score_threshold_used"`
	WebSearchTriggered bool    `json:"web_search_triggered"`
	WebSearchCount     int     `json:"web_search_count"`
	SearchTimeMs       int64   `json:"search_time_ms"`
	SufficiencyReason  string  `json:"sufficiency_reason"`
}

// SearchResult is the full search-workflow response envelope.
type SearchResult struct {
	Query      string        `json:"query"`
	Policies   []PolicyHit   `json:"policies"`
	Metrics    SearchMetrics `json:"metrics"`
	Evidence   []Evidence    `json:"evidence"`
	WebSources []WebResult   `json:"web_sources"`
	Summary    string        `json:"summary"`
}
