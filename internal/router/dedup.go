package router

import (
	"sync"
	"time"
)

// Dedup drops repeated signals for the same (strategy, symbol, side)
// within a TTL window. Strategies emit on every qualifying tick, so a
// crossover that holds for several ticks would otherwise route several
// identical orders.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether the key was seen within the TTL window.
// A fresh key is recorded as seen.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Cleanup removes entries older than the TTL. Called periodically from
// the router's run loop so the map does not grow without bound.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, last := range d.seen {
		if now.Sub(last) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
