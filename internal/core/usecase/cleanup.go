package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

var errSessionOrPolicyMissing = errors.New("session_id and policy_id are required")

// CleanupUseCase clears both session caches. Idempotent: clearing an unknown
// session is a no-op.
type CleanupUseCase struct {
	history  ports.ChatHistoryCache
	contexts ports.PolicyContextCache
	logger   *slog.Logger
}

func NewCleanupUseCase(history ports.ChatHistoryCache, contexts ports.PolicyContextCache, logger *slog.Logger) *CleanupUseCase {
	return &CleanupUseCase{history: history, contexts: contexts, logger: logger}
}

func (uc *CleanupUseCase) Cleanup(_ context.Context, sessionID string) error {
	uc.history.Clear(sessionID)
	uc.contexts.Clear(sessionID)
	uc.logger.Info("session_cleaned", "session_id", sessionID)
	return nil
}
