package cache

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// DefaultNarrativeFreshness is how long a narrative is served without
// triggering regeneration.
const DefaultNarrativeFreshness = 6 * time.Hour

// Narrative is a precomputed conversation-opening summary for one user.
type Narrative struct {
	Summary     string
	GeneratedAt time.Time
}

// NarrativeCache maps user identities to precomputed narratives. Stale
// entries are still served (stale-while-revalidate) while a single-flight
// background refresh replaces them; a caller never blocks on regeneration.
type NarrativeCache struct {
	mu             sync.RWMutex
	entries        map[string]Narrative
	freshness      time.Duration
	refreshTimeout time.Duration
	group          singleflight.Group
}

// NewNarrativeCache creates a narrative cache with the given freshness
// threshold.
func NewNarrativeCache(freshness time.Duration) *NarrativeCache {
	if freshness <= 0 {
		freshness = DefaultNarrativeFreshness
	}

	return &NarrativeCache{
		entries:        make(map[string]Narrative),
		freshness:      freshness,
		refreshTimeout: 30 * time.Second,
	}
}

// Get returns the narrative for a user and whether it is stale. A stale
// narrative is still usable; the caller should trigger RefreshAsync.
func (c *NarrativeCache) Get(userID string) (Narrative, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok {
		return Narrative{}, false, false
	}

	stale := time.Since(entry.GeneratedAt) > c.freshness
	return entry, true, stale
}

// Put stores a freshly generated narrative for a user.
func (c *NarrativeCache) Put(userID, summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = Narrative{
		Summary:     summary,
		GeneratedAt: time.Now().UTC(),
	}
}

// RefreshAsync regenerates a user's narrative in the background. Concurrent
// refreshes for the same user collapse into one; failures are logged and the
// stale entry stays in place.
func (c *NarrativeCache) RefreshAsync(userID string, regenerate func(ctx context.Context) (string, error)) {
	go func() {
		_, err, _ := c.group.Do(userID, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
			defer cancel()

			summary, err := regenerate(ctx)
			if err != nil {
				return nil, err
			}

			c.Put(userID, summary)
			return nil, nil
		})

		if err != nil {
			log.Error("narrative refresh failed", "user", userID, "error", err)
		}
	}()
}
