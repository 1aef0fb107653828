package manager

import (
	"slices"
	"sync"
	"time"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

const (
	idempotencyValidity  = 24 * time.Hour
	idempotencyCleanupAt = 1000
)

// idempotencyKey is the composite key of a submitted action
type idempotencyKey struct {
	GameID         string
	IdempotencyKey string
}

// Outcome is the result of one submission
type Outcome struct {
	Events []events.GameEvent
	Err    error
}

type idempotencyEntry struct {
	outcome   Outcome
	createdAt time.Time
}

// IdempotencyCache remembers the outcome of keyed submissions so a retried
// request gets the same answer instead of a second commit
type IdempotencyCache struct {
	cache map[idempotencyKey]*idempotencyEntry
	mu    sync.RWMutex
	now   func() time.Time
}

// NewIdempotencyCache creates an empty cache
func NewIdempotencyCache(now func() time.Time) *IdempotencyCache {
	if now == nil {
		now = time.Now
	}
	return &IdempotencyCache{
		cache: make(map[idempotencyKey]*idempotencyEntry),
		now:   now,
	}
}

// Check returns the cached outcome for key in the given game. Rejections are
// cached too.
func (ic *IdempotencyCache) Check(gameID, key string) (Outcome, bool) {
	if key == "" {
		return Outcome{}, false
	}

	ic.mu.RLock()
	defer ic.mu.RUnlock()

	entry, exists := ic.cache[idempotencyKey{GameID: gameID, IdempotencyKey: key}]
	if !exists {
		return Outcome{}, false
	}
	if ic.now().Sub(entry.createdAt) > idempotencyValidity {
		return Outcome{}, false
	}
	return Outcome{Events: slices.Clone(entry.outcome.Events), Err: entry.outcome.Err}, true
}

// Store caches the outcome of a keyed submission
func (ic *IdempotencyCache) Store(gameID, key string, outcome Outcome) {
	if key == "" {
		return
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.cache[idempotencyKey{GameID: gameID, IdempotencyKey: key}] = &idempotencyEntry{
		outcome:   Outcome{Events: slices.Clone(outcome.Events), Err: outcome.Err},
		createdAt: ic.now(),
	}

	if len(ic.cache) > idempotencyCleanupAt {
		ic.cleanupOldEntriesLocked()
	}
}

// Forget drops every entry of a game
func (ic *IdempotencyCache) Forget(gameID string) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	for key := range ic.cache {
		if key.GameID == gameID {
			delete(ic.cache, key)
		}
	}
}

// Len returns the number of cached entries
func (ic *IdempotencyCache) Len() int {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return len(ic.cache)
}

// cleanupOldEntriesLocked removes expired entries. Must be called with mu held.
func (ic *IdempotencyCache) cleanupOldEntriesLocked() {
	cutoff := ic.now().Add(-idempotencyValidity)
	for key, entry := range ic.cache {
		if entry.createdAt.Before(cutoff) {
			delete(ic.cache, key)
		}
	}
}
