package domain

import "time"

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message in a session's conversation. Assistant turns carry
// the evidence that was frozen at answer time.
type ChatTurn struct {
	Role      ChatRole   `json:"role"`
	Content   string     `json:"content"`
	Evidence  []Evidence `json:"evidence,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type EvidenceType string

const (
	EvidenceInternal EvidenceType = "internal"
	EvidenceWeb      EvidenceType = "web"
)

type LinkType string

const (
	LinkPolicyDetail LinkType = "policy_detail"
	LinkExternal     LinkType = "external"
)

// Evidence is the structured source attribution behind an answer or a search
// hit. It is a tagged union: internal entries point at a policy chunk, web
// entries at an external page.
type Evidence struct {
	Type     EvidenceType `json:"type"`
	Source   string       `json:"source"`
	Content  string       `json:"content"`
	Score    float64      `json:"score"`
	URL      string       `json:"url"`
	LinkType LinkType     `json:"link_type"`

	// Internal entries only.
	PolicyID   int64 `json:"policy_id,omitempty"`
	ChunkIndex int   `json:"chunk_index,omitempty"`

	// Web entries only.
	FetchedDate string `json:"fetched_date,omitempty"`
}

// WebResult is a single hit from the external web-search provider.
type WebResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Snippet     string  `json:"snippet"`
	Score       float64 `json:"score"`
	FetchedDate string  `json:"fetched_date"`
}

type QueryType string

const (
	QueryPolicyQA QueryType = "POLICY_QA"
	QueryWebOnly  QueryType = "WEB_ONLY"
)

// AnswerMode records which answer path produced a chat answer.
const (
	AnswerDocsOnly = "docs_only"
	AnswerWebOnly  = "web_only"
	AnswerHybrid   = "hybrid"
	AnswerFallback = "fallback"
)

// ChatAnswer is the outcome of one QA workflow run. AnswerMode is internal
// bookkeeping for metrics and usage events, not part of the response body.
type ChatAnswer struct {
	SessionID  string      `json:"session_id"`
	Answer     string      `json:"answer"`
	Evidence   []Evidence  `json:"evidence"`
	WebSources []WebResult `json:"web_sources"`
	QueryType  QueryType   `json:"query_type"`
	AnswerMode string      `json:"-"`
}
