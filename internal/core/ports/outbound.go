package ports

import (
	"context"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// VectorStore exposes the dense side of retrieval plus the full-corpus
// scroll used to materialize policy contexts and to feed the sparse index.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter, minScore float64) ([]domain.ChunkHit, error)
	Scroll(ctx context.Context, filter domain.SearchFilter, limit int) ([]domain.DocumentChunk, error)
}

// PolicyStore reads policy metadata from the relational store.
type PolicyStore interface {
	GetByID(ctx context.Context, id int64) (*domain.PolicyRecord, error)
	LookupPolicies(ctx context.Context, ids []int64) (map[int64]domain.PolicyRecord, error)
}

// SparseIndex is the BM25 side of retrieval. Build is lazy; Search must not
// run before the index is built.
type SparseIndex interface {
	EnsureBuilt(ctx context.Context) error
	Search(query string, topK int) []domain.ChunkHit
	Tokenize(text string) []string
}

// Embedder turns query text into a dense vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel generates the final user-facing answer from a rendered prompt.
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// WebSearcher queries the external web-search provider. A single call, hard
// deadline, no internal retry; callers degrade gracefully on error.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error)
}

// ChatHistoryCache keeps per-session conversation turns in process memory.
type ChatHistoryCache interface {
	Append(sessionID string, turn domain.ChatTurn)
	History(sessionID string) []domain.ChatTurn
	Clear(sessionID string)
}

// PolicyContextCache keeps the per-session materialized policy context.
type PolicyContextCache interface {
	Set(sessionID string, ctx domain.PolicyContext)
	Get(sessionID string) (domain.PolicyContext, bool)
	Clear(sessionID string)
}

// EventPublisher emits usage events consumed by the offline evaluation
// pipeline. Publishing is best-effort; implementations must not block the
// request path on delivery.
type EventPublisher interface {
	PublishChatAnswered(ctx context.Context, event ChatAnsweredEvent) error
	PublishSearchCompleted(ctx context.Context, event SearchCompletedEvent) error
}

type ChatAnsweredEvent struct {
	SessionID     string `json:"session_id"`
	PolicyID      int64  `json:"policy_id"`
	QueryType     string `json:"query_type"`
	AnswerMode    string `json:"answer_mode"`
	InternalCount int    `json:"internal_evidence_count"`
	WebCount      int    `json:"web_evidence_count"`
	DurationMs    int64  `json:"duration_ms"`
}

type SearchCompletedEvent struct {
	Query              string  `json:"query"`
	FinalCount         int     `json:"final_count"`
	TopScore           float64 `json:"top_score"`
	WebSearchTriggered bool    `json:"web_search_triggered"`
	DurationMs         int64   `json:"duration_ms"`
}
