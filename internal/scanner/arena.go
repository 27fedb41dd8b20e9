package scanner

import (
	"sync"
	"time"
)

// arena tracks the last evaluated candle timestamp per pair. Entries
// are created on first use and evicted explicitly when a pair leaves
// the watch-list, so the map cannot grow without bound.
type arena struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newArena() *arena {
	return &arena{entries: make(map[string]time.Time)}
}

// observe records the candle close time for a pair and reports whether
// it differs from the previous one. A repeat timestamp means the pair
// has no new candle and entry evaluation should be skipped.
func (a *arena) observe(pair string, candleClose time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	last, seen := a.entries[pair]
	a.entries[pair] = candleClose
	return !seen || !candleClose.Equal(last)
}

// retain drops every pair not in the given set and returns the evicted
// pairs so callers can clean up their own per-pair state.
func (a *arena) retain(pairs []string) []string {
	keep := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		keep[p] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var evicted []string
	for pair := range a.entries {
		if _, ok := keep[pair]; !ok {
			delete(a.entries, pair)
			evicted = append(evicted, pair)
		}
	}
	return evicted
}

func (a *arena) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
