package cache

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts expired entries from both session caches. The
// TTL is a safety net for clients that never call cleanup; the sweep runs
// until the context is cancelled.
type Sweeper struct {
	chat     *ChatCache
	contexts *PolicyContextCache
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(chat *ChatCache, contexts *PolicyContextCache, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{chat: chat, contexts: contexts, interval: interval, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chatRemoved := s.chat.sweepExpired()
			contextRemoved := s.contexts.sweepExpired()
			if chatRemoved > 0 || contextRemoved > 0 {
				s.logger.Info("session_cache_sweep",
					"chat_sessions_removed", chatRemoved,
					"policy_contexts_removed", contextRemoved,
				)
			}
		}
	}
}
