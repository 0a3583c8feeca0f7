package nonce

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1742000000, 0)}
}

func TestMemoryGuard_RememberOnce(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g, err := NewMemoryGuard(MemoryOptions{TTL: time.Minute, Now: clock.Now})
	require.NoError(t, err)
	defer g.Close()

	e := Entry{ID: "dh37fgj492je", Nonce: "3hOHpR", Timestamp: 1742000000}

	seen, err := g.Seen(ctx, e)
	require.NoError(t, err)
	require.False(t, seen)

	ok, err := g.Remember(ctx, e)
	require.NoError(t, err)
	require.True(t, ok)

	seen, err = g.Seen(ctx, e)
	require.NoError(t, err)
	require.True(t, seen)

	ok, err = g.Remember(ctx, e)
	require.NoError(t, err)
	require.False(t, ok, "second insert of the same nonce must lose")

	other := Entry{ID: "other", Nonce: "3hOHpR"}
	ok, err = g.Remember(ctx, other)
	require.NoError(t, err)
	require.True(t, ok, "nonces are scoped by credential id")
}

func TestMemoryGuard_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g, err := NewMemoryGuard(MemoryOptions{TTL: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	e := Entry{ID: "a", Nonce: "n"}
	ok, _ := g.Remember(ctx, e)
	require.True(t, ok)

	// freshness is judged in whole seconds, so the entry outlives the TTL
	// by one second
	clock.Advance(60 * time.Second)
	seen, _ := g.Seen(ctx, e)
	require.True(t, seen)

	clock.Advance(time.Second)
	seen, _ = g.Seen(ctx, e)
	require.False(t, seen, "entry must expire once the request is stale")
	require.Equal(t, 0, g.Len())

	ok, _ = g.Remember(ctx, e)
	require.True(t, ok)
}

func TestMemoryGuard_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g, err := NewMemoryGuard(MemoryOptions{TTL: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := g.Remember(ctx, Entry{ID: "a", Nonce: fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
		clock.Advance(10 * time.Second)
	}
	// entries expire at +61s, +71s, ... ; now is +50s
	require.Equal(t, 0, g.Sweep())

	clock.Advance(25 * time.Second) // +75s
	require.Equal(t, 2, g.Sweep())
	require.Equal(t, 3, g.Len())
}

func TestMemoryGuard_FutureTimestamp(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g, err := NewMemoryGuard(MemoryOptions{TTL: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	// a client clock a full window ahead stays fresh for two windows
	e := Entry{ID: "a", Nonce: "n", Timestamp: clock.Now().Unix() + 60}
	ok, err := g.Remember(ctx, e)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(120 * time.Second)
	require.Zero(t, g.Sweep())
	seen, _ := g.Seen(ctx, e)
	require.True(t, seen)

	clock.Advance(time.Second)
	seen, _ = g.Seen(ctx, e)
	require.False(t, seen)
}

func TestMemoryGuard_Capacity(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	reg := prometheus.NewRegistry()
	g, err := NewMemoryGuard(MemoryOptions{TTL: time.Minute, Capacity: 3, Registerer: reg, Now: clock.Now})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := g.Remember(ctx, Entry{ID: "a", Nonce: fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err = g.Remember(ctx, Entry{ID: "a", Nonce: "n3"})
	require.ErrorIs(t, err, ErrFull, "live nonces must not be evicted to make room")
	require.Equal(t, 3, g.Len())
	require.Zero(t, testutil.ToFloat64(g.metrics.evicted))
	require.Equal(t, float64(1), testutil.ToFloat64(g.metrics.full))

	seen, _ := g.Seen(ctx, Entry{ID: "a", Nonce: "n0"})
	require.True(t, seen, "oldest live nonce is still rejected as a replay")
	require.Equal(t, float64(1), testutil.ToFloat64(g.metrics.replayed))

	clock.Advance(61 * time.Second)
	ok, err := g.Remember(ctx, Entry{ID: "a", Nonce: "n3"})
	require.NoError(t, err)
	require.True(t, ok, "expired entries make room")
	require.Equal(t, 1, g.Len())
	require.Equal(t, float64(3), testutil.ToFloat64(g.metrics.evicted))
	require.Equal(t, float64(1), testutil.ToFloat64(g.metrics.size))
}

func TestMemoryGuard_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMemoryGuard(MemoryOptions{Registerer: reg})
	require.NoError(t, err)
	b, err := NewMemoryGuard(MemoryOptions{Registerer: reg})
	require.NoError(t, err)
	require.Same(t, a.metrics.evicted, b.metrics.evicted)
}

func TestMemoryGuard_Incomplete(t *testing.T) {
	g, err := NewMemoryGuard(MemoryOptions{})
	require.NoError(t, err)

	_, err = g.Seen(context.Background(), Entry{ID: "a"})
	require.ErrorIs(t, err, ErrIncomplete)
	_, err = g.Remember(context.Background(), Entry{Nonce: "n"})
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestMemoryGuard_ConcurrentRemember(t *testing.T) {
	ctx := context.Background()
	g, err := NewMemoryGuard(MemoryOptions{})
	require.NoError(t, err)

	const workers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := g.Remember(ctx, Entry{ID: "a", Nonce: "race"})
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load(), "exactly one racer may record the nonce")
}

func TestMemoryGuard_Janitor(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g, err := NewMemoryGuard(MemoryOptions{TTL: time.Second, JanitorInterval: 5 * time.Millisecond, Now: clock.Now})
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Remember(ctx, Entry{ID: "a", Nonce: "n"})
	require.NoError(t, err)
	clock.Advance(3 * time.Second)

	require.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
}
