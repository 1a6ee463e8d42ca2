package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

// InitPolicyUseCase materializes a session's policy context: policy metadata
// from the relational store plus every document chunk from the vector store.
// Chat turns afterwards read only the cache.
type InitPolicyUseCase struct {
	policies ports.PolicyStore
	vectors  ports.VectorStore
	contexts ports.PolicyContextCache
	maxDocs  int
	logger   *slog.Logger
}

func NewInitPolicyUseCase(
	policies ports.PolicyStore,
	vectors ports.VectorStore,
	contexts ports.PolicyContextCache,
	maxDocs int,
	logger *slog.Logger,
) *InitPolicyUseCase {
	if maxDocs <= 0 {
		maxDocs = 200
	}
	return &InitPolicyUseCase{
		policies: policies,
		vectors:  vectors,
		contexts: contexts,
		maxDocs:  maxDocs,
		logger:   logger,
	}
}

// InitPolicy fails atomically: any upstream error leaves no partial context
// in the cache.
func (uc *InitPolicyUseCase) InitPolicy(ctx context.Context, sessionID string, policyID int64) (*domain.PolicyContext, error) {
	if sessionID == "" || policyID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "init policy", errSessionOrPolicyMissing)
	}

	policy, err := uc.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}

	chunks, err := uc.vectors.Scroll(ctx, domain.SearchFilter{PolicyID: policyID}, uc.maxDocs)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "scroll policy documents", err)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })

	policyContext := domain.PolicyContext{
		PolicyID:  policyID,
		Policy:    *policy,
		Documents: chunks,
	}
	uc.contexts.Set(sessionID, policyContext)

	uc.logger.Info("policy_context_initialized",
		"session_id", sessionID,
		"policy_id", policyID,
		"documents_count", len(chunks),
	)
	return &policyContext, nil
}
