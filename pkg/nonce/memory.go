package nonce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultTTL matches the default clock-skew window.
	DefaultTTL = 60 * time.Second

	// DefaultCapacity bounds the memory a guard can use.
	DefaultCapacity = 100_000
)

// MemoryOptions configures a MemoryGuard.
type MemoryOptions struct {
	// TTL is how long a nonce is remembered. Use the server's clock-skew
	// window. Default: DefaultTTL.
	TTL time.Duration

	// Capacity is the maximum number of tracked nonces. When full of live
	// entries Remember fails with ErrFull. Default: DefaultCapacity.
	Capacity int

	// JanitorInterval enables a background sweep of expired entries.
	// Zero disables it; expired entries are then dropped lazily.
	JanitorInterval time.Duration

	// Registerer receives size, eviction, replay and overflow metrics. Nil disables
	// metrics.
	Registerer prometheus.Registerer

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// MemoryGuard is an in-process Guard backed by an LRU of expiry times.
type MemoryGuard struct {
	ttl      time.Duration
	capacity int
	now     func() time.Time
	metrics *guardMetrics

	mu      sync.Mutex
	entries *simplelru.LRU // key -> time.Time expiry, oldest first

	janitorStop chan struct{}
	stopOnce    sync.Once
	janitorWG   sync.WaitGroup
}

// NewMemoryGuard returns a MemoryGuard. Call Close to stop the janitor.
func NewMemoryGuard(opts MemoryOptions) (*MemoryGuard, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	g := &MemoryGuard{
		ttl:         opts.TTL,
		capacity:    opts.Capacity,
		now:         opts.Now,
		metrics:     newGuardMetrics(opts.Registerer, "memory"),
		janitorStop: make(chan struct{}),
	}

	entries, err := simplelru.NewLRU(opts.Capacity, func(_, _ interface{}) {
		g.metrics.observeEvicted(1)
	})
	if err != nil {
		return nil, fmt.Errorf("create nonce cache: %w", err)
	}
	g.entries = entries
	g.metrics.observeSize(0)

	if opts.JanitorInterval > 0 {
		g.janitorWG.Add(1)
		go g.runJanitor(opts.JanitorInterval)
	}
	return g, nil
}

// Seen reports whether e's nonce is recorded and not yet expired.
func (g *MemoryGuard) Seen(_ context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	seen := g.liveLocked(e.Key(), now)
	if seen {
		g.metrics.observeReplay()
	}
	return seen, nil
}

// Remember records e unless a live entry for it exists. A full guard first
// drops expired entries; if none are expired it returns ErrFull rather than
// forget a nonce that could still be replayed.
func (g *MemoryGuard) Remember(_ context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	key := e.Key()
	if g.liveLocked(key, now) {
		g.metrics.observeReplay()
		return false, nil
	}
	if g.entries.Len() >= g.capacity {
		g.sweepLocked(now)
		if g.entries.Len() >= g.capacity {
			g.metrics.observeFull()
			return false, fmt.Errorf("%w: %d live entries", ErrFull, g.entries.Len())
		}
	}
	g.entries.Add(key, e.Expiry(now, g.ttl))
	g.metrics.observeSize(g.entries.Len())
	return true, nil
}

// liveLocked reports whether key has an unexpired entry, dropping it when
// expired. Peek leaves the LRU order as insertion order.
func (g *MemoryGuard) liveLocked(key string, now time.Time) bool {
	v, ok := g.entries.Peek(key)
	if !ok {
		return false
	}
	if now.Before(v.(time.Time)) {
		return true
	}
	g.entries.Remove(key)
	g.metrics.observeSize(g.entries.Len())
	return false
}

// Sweep removes expired entries and returns how many were removed.
func (g *MemoryGuard) Sweep() int {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweepLocked(now)
}

// sweepLocked scans every entry: expiries depend on request timestamps, so
// insertion order is not expiry order.
func (g *MemoryGuard) sweepLocked(now time.Time) int {
	removed := 0
	for _, k := range g.entries.Keys() {
		v, ok := g.entries.Peek(k)
		if !ok || now.Before(v.(time.Time)) {
			continue
		}
		g.entries.Remove(k)
		removed++
	}
	g.metrics.observeSize(g.entries.Len())
	return removed
}

// Len returns the number of tracked entries, expired ones included.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entries.Len()
}

func (g *MemoryGuard) runJanitor(interval time.Duration) {
	defer g.janitorWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.Sweep()
		case <-g.janitorStop:
			return
		}
	}
}

// Close stops the janitor. The guard stays usable.
func (g *MemoryGuard) Close() error {
	g.stopOnce.Do(func() {
		close(g.janitorStop)
		g.janitorWG.Wait()
	})
	return nil
}
