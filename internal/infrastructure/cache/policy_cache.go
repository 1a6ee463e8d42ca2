package cache

import (
	"sync"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// PolicyContextCache holds the materialized policy context per session so a
// chat turn never has to hit the vector store. Exactly zero or one context
// per session; Set overwrites.
type PolicyContextCache struct {
	mu        sync.RWMutex
	contexts  map[string]domain.PolicyContext
	touchedAt map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
}

// ContextStats summarizes cache occupancy for monitoring.
type ContextStats struct {
	Sessions      int     `json:"total_sessions"`
	Documents     int     `json:"total_documents"`
	AvgPerSession float64 `json:"avg_documents_per_session"`
}

func NewPolicyContextCache(ttl time.Duration) *PolicyContextCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PolicyContextCache{
		contexts:  make(map[string]domain.PolicyContext),
		touchedAt: make(map[string]time.Time),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (c *PolicyContextCache) Set(sessionID string, ctx domain.PolicyContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.CachedAt.IsZero() {
		ctx.CachedAt = c.now()
	}
	c.contexts[sessionID] = ctx
	c.touchedAt[sessionID] = c.now()
}

func (c *PolicyContextCache) Get(sessionID string) (domain.PolicyContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, ok := c.contexts[sessionID]
	return ctx, ok
}

func (c *PolicyContextCache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.contexts, sessionID)
	delete(c.touchedAt, sessionID)
}

func (c *PolicyContextCache) Stats() ContextStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := ContextStats{Sessions: len(c.contexts)}
	for _, ctx := range c.contexts {
		stats.Documents += len(ctx.Documents)
	}
	if stats.Sessions > 0 {
		stats.AvgPerSession = float64(stats.Documents) / float64(stats.Sessions)
	}
	return stats
}

func (c *PolicyContextCache) sweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for sessionID, touched := range c.touchedAt {
		if touched.Before(cutoff) {
			delete(c.contexts, sessionID)
			delete(c.touchedAt, sessionID)
			removed++
		}
	}
	return removed
}
