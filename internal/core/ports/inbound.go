package ports

import (
	"context"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// PolicyInitializer is the inbound contract for init-policy: materialize a
// session's policy context before the first chat turn.
type PolicyInitializer interface {
	InitPolicy(ctx context.Context, sessionID string, policyID int64) (*domain.PolicyContext, error)
}

// ChatService runs the QA workflow for one user message.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (*domain.ChatAnswer, error)
}

// SessionCleaner evicts both session caches. Idempotent.
type SessionCleaner interface {
	Cleanup(ctx context.Context, sessionID string) error
}

// PolicySearcher is the inbound contract for policy discovery.
type PolicySearcher interface {
	Search(ctx context.Context, query string, filter domain.SearchFilter) (*domain.SearchResult, error)
}
