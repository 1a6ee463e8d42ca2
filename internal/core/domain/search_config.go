package domain

type FusionMode string

const (
	FusionRRF      FusionMode = "rrf"
	FusionWeighted FusionMode = "weighted"
)

// SearchConfig tunes hybrid retrieval. It is a value type: holders that want
// to update it at runtime swap the whole struct (copy-on-update).
type SearchConfig struct {
	DefaultScoreThreshold float64
	MinScoreThreshold     float64
	MaxScoreThreshold     float64
	ThresholdStep         float64

	CandidatesPerSource int
	FinalLimit          int

	TargetMinResults int
	TargetMaxResults int

	WebSearchTriggerCount int
	WebSearchTriggerScore float64
	WebSearchMaxResults   int

	FusionMode     FusionMode
	DenseWeight    float64
	SparseWeight   float64
	RRFK           int
	SparseMinScore float64

	// KeywordThresholdAdjustments shifts the similarity threshold per query
	// keyword: broad terms loosen it, specific terms tighten it.
	KeywordThresholdAdjustments map[string]float64
	RegionAdjustment            float64
	CategoryAdjustment          float64
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultScoreThreshold: 0.25,
		MinScoreThreshold:     0.15,
		MaxScoreThreshold:     0.50,
		ThresholdStep:         0.05,

		CandidatesPerSource: 100,
		FinalLimit:          50,

		TargetMinResults: 3,
		TargetMaxResults: 15,

		WebSearchTriggerCount: 2,
		WebSearchTriggerScore: 0.35,
		WebSearchMaxResults:   5,

		FusionMode:     FusionRRF,
		DenseWeight:    0.7,
		SparseWeight:   0.3,
		RRFK:           60,
		SparseMinScore: 0.1,

		KeywordThresholdAdjustments: map[string]float64{
			"지원금":  -0.05,
			"보조금":  -0.05,
			"지원사업": -0.05,
			"정책":   -0.05,
			"창업":   -0.05,
			"청년":   -0.05,
			"중소기업": -0.05,
			"소상공인": -0.05,
			"r&d":  0.05,
			"수출":   0.05,
			"특허":   0.05,
		},
		RegionAdjustment:   -0.02,
		CategoryAdjustment: -0.02,
	}
}

// CalculateThreshold derives the similarity threshold for one query. Broad
// keywords, present filters and a thin provisional result set all loosen the
// threshold; an overly wide result set tightens it. The result is clamped to
// [MinScoreThreshold, MaxScoreThreshold]. resultCount < 0 means "unknown".
func (c SearchConfig) CalculateThreshold(keywords []string, region, category string, resultCount int) float64 {
	threshold := c.DefaultScoreThreshold

	for _, keyword := range keywords {
		if delta, ok := c.KeywordThresholdAdjustments[keyword]; ok {
			threshold += delta
		}
	}
	if region != "" {
		threshold += c.RegionAdjustment
	}
	if category != "" {
		threshold += c.CategoryAdjustment
	}

	if resultCount >= 0 {
		if resultCount < c.TargetMinResults {
			threshold -= c.ThresholdStep
		} else if resultCount > c.TargetMaxResults {
			threshold += 0.03
		}
	}

	if threshold < c.MinScoreThreshold {
		threshold = c.MinScoreThreshold
	}
	if threshold > c.MaxScoreThreshold {
		threshold = c.MaxScoreThreshold
	}
	return threshold
}

// ShouldTriggerWebSearch reports whether the internal result set is too weak
// and the web fallback must run.
func (c SearchConfig) ShouldTriggerWebSearch(resultCount int, topScore float64) bool {
	return resultCount < c.WebSearchTriggerCount || topScore < c.WebSearchTriggerScore
}
