package domain

import "time"

// PolicyRecord is a government grant/support program. Records are created by
// the external ingestion pipeline and are read-only here.
type PolicyRecord struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"program_name"`
	Region             string            `json:"region"`
	Category           string            `json:"category"`
	Overview           string            `json:"program_overview"`
	ApplyTarget        string            `json:"apply_target"`
	SupportDescription string            `json:"support_description"`
	URL                string            `json:"url,omitempty"`
	Extras             map[string]string `json:"extras,omitempty"`
}

// DocumentChunk is one retrievable text segment of a policy's documents.
// Dense vectors are populated out-of-band by ingestion and are not carried
// here; cached contexts and the sparse index only need payloads.
type DocumentChunk struct {
	ID         string `json:"chunk_id"`
	PolicyID   int64  `json:"policy_id"`
	ChunkIndex int    `json:"chunk_index"`
	DocType    string `json:"doc_type"`
	Content    string `json:"content"`
}

// PolicyContext is the per-session materialized view created by init-policy:
// the policy metadata plus every chunk of its documents, so chat turns never
// have to touch the vector store again.
type PolicyContext struct {
	PolicyID  int64
	Policy    PolicyRecord
	Documents []DocumentChunk
	CachedAt  time.Time
}
