package nonce

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	nonceKeyPrefix  = "nonce:"
	expiryKeyPrefix = "expires:"
)

// LevelDBOptions configures a LevelDBGuard.
type LevelDBOptions struct {
	// TTL is the skew window used for entries without ExpiresAt.
	// Default: DefaultTTL.
	TTL time.Duration

	// Registerer receives metrics. Nil disables them.
	Registerer prometheus.Registerer

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// LevelDBGuard persists nonces in LevelDB so that replay protection
// survives restarts. LevelDB locks its directory, so one guard serves one
// process; a fleet of servers needs a network store behind Guard.
type LevelDBGuard struct {
	db      *leveldb.DB
	ttl     time.Duration
	now     func() time.Time
	metrics *guardMetrics

	// mu makes Remember's read-then-write atomic.
	mu sync.Mutex
}

// OpenLevelDBGuard opens (or creates) a LevelDB database at path.
func OpenLevelDBGuard(path string, opts LevelDBOptions) (*LevelDBGuard, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb nonce store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb nonce path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb nonce store: %w", err)
	}
	return NewLevelDBGuard(db, opts), nil
}

// NewLevelDBGuard wraps an open database.
func NewLevelDBGuard(db *leveldb.DB, opts LevelDBOptions) *LevelDBGuard {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LevelDBGuard{
		db:      db,
		ttl:     opts.TTL,
		now:     opts.Now,
		metrics: newGuardMetrics(opts.Registerer, "leveldb"),
	}
}

// Close releases the underlying LevelDB resources.
func (g *LevelDBGuard) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// Seen reports whether e's nonce is recorded and not yet expired.
func (g *LevelDBGuard) Seen(_ context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	seen, err := g.live(e.Key(), g.now())
	if err != nil {
		return false, err
	}
	if seen {
		g.metrics.observeReplay()
	}
	return seen, nil
}

// Remember records e unless a live entry for it exists.
func (g *LevelDBGuard) Remember(_ context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	now := g.now()
	key := e.Key()

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, found, err := g.expiresAt(key)
	if err != nil {
		return false, err
	}
	if found && now.Before(time.Unix(0, existing)) {
		g.metrics.observeReplay()
		return false, nil
	}

	batch := new(leveldb.Batch)
	if found {
		batch.Delete([]byte(expiryKey(existing, key)))
	}
	nanos := e.Expiry(now, g.ttl).UnixNano()
	batch.Put([]byte(nonceKeyPrefix+key), encodeUnixNano(nanos))
	batch.Put([]byte(expiryKey(nanos, key)), nil)
	if err := g.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return true, nil
}

func (g *LevelDBGuard) live(key string, now time.Time) (bool, error) {
	nanos, found, err := g.expiresAt(key)
	if err != nil || !found {
		return false, err
	}
	return now.Before(time.Unix(0, nanos)), nil
}

func (g *LevelDBGuard) expiresAt(key string) (int64, bool, error) {
	val, err := g.db.Get([]byte(nonceKeyPrefix+key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("load nonce: %w", err)
	case len(val) != 8:
		return 0, false, fmt.Errorf("load nonce: corrupt value of %d bytes", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), true, nil
}

// Prune deletes entries expiring at or before cutoff and returns how many
// were removed.
func (g *LevelDBGuard) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffKey := []byte(expiryKey(cutoff.UnixNano()+1, ""))

	g.mu.Lock()
	defer g.mu.Unlock()

	iter := g.db.NewIterator(util.BytesPrefix([]byte(expiryKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	removed := 0
	for iter.Next() {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if string(iter.Key()) >= string(cutoffKey) {
			break
		}
		key, _, ok := parseExpiryKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete([]byte(nonceKeyPrefix + key))
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterate nonce expiries: %w", err)
	}
	if batch.Len() > 0 {
		if err := g.db.Write(batch, nil); err != nil {
			return 0, fmt.Errorf("prune nonces: %w", err)
		}
	}
	g.metrics.observeEvicted(removed)
	return removed, nil
}

// Sweep prunes every expired entry.
func (g *LevelDBGuard) Sweep(ctx context.Context) (int, error) {
	return g.Prune(ctx, g.now())
}

func expiryKey(nanos int64, key string) string {
	return fmt.Sprintf("%s%020d:%s", expiryKeyPrefix, nanos, key)
}

func parseExpiryKey(raw []byte) (string, int64, bool) {
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[2], nanos, true
}

func encodeUnixNano(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}
