package cache

import (
	"sync"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// ChatCache keeps per-session conversation history in process memory. History
// is bounded to maxMessages entries (2 per turn); the oldest messages are
// evicted first. The TTL only backstops clients that never call cleanup.
type ChatCache struct {
	mu          sync.RWMutex
	sessions    map[string][]domain.ChatTurn
	touchedAt   map[string]time.Time
	maxMessages int
	ttl         time.Duration
	now         func() time.Time
}

func NewChatCache(maxTurns int, ttl time.Duration) *ChatCache {
	if maxTurns <= 0 {
		maxTurns = 25
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ChatCache{
		sessions:    make(map[string][]domain.ChatTurn),
		touchedAt:   make(map[string]time.Time),
		maxMessages: 2 * maxTurns,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (c *ChatCache) Append(sessionID string, turn domain.ChatTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = c.now()
	}
	history := append(c.sessions[sessionID], turn)
	if over := len(history) - c.maxMessages; over > 0 {
		history = history[over:]
	}
	c.sessions[sessionID] = history
	c.touchedAt[sessionID] = c.now()
}

// History returns a snapshot copy; callers may not observe later appends and
// must not mutate the returned slice's evidence.
func (c *ChatCache) History(sessionID string) []domain.ChatTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]domain.ChatTurn, len(history))
	copy(out, history)
	return out
}

func (c *ChatCache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	delete(c.touchedAt, sessionID)
}

func (c *ChatCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *ChatCache) sweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for sessionID, touched := range c.touchedAt {
		if touched.Before(cutoff) {
			delete(c.sessions, sessionID)
			delete(c.touchedAt, sessionID)
			removed++
		}
	}
	return removed
}
