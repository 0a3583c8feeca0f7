// Package nonce implements the replay guard Hawk servers consult before
// accepting a header-authenticated request.
//
// A Guard maps (credential id, nonce) to the instant the entry may be
// forgotten. That is the first instant at which the request's timestamp
// falls outside the clock-skew window, so a replay after expiry is rejected
// as stale instead. A timestamp ahead of the server clock therefore keeps
// its nonce alive for up to twice the window.
//
// MemoryGuard protects a single process. Deployments with several server
// instances must share one store through the Guard interface, otherwise
// replay protection silently degrades to per-instance.
package nonce

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrIncomplete is returned for entries missing an id or nonce.
	ErrIncomplete = errors.New("nonce entry incomplete")

	// ErrFull is returned by Remember when the guard cannot record another
	// nonce without forgetting one that is still live.
	ErrFull = errors.New("nonce guard full")
)

// Entry identifies one use of a nonce.
type Entry struct {
	ID         string    // credential id
	Nonce      string    // client nonce
	Timestamp  int64     // request timestamp, unix seconds
	ObservedAt time.Time // server time of acceptance; zero means now

	// ExpiresAt is the first instant at which a request carrying Timestamp
	// is stale. Zero means Expiry derives it from the guard TTL.
	ExpiresAt time.Time
}

// Key returns the store key of e. The id is length-prefixed so that
// distinct (id, nonce) pairs never collide.
func (e Entry) Key() string {
	return strconv.Itoa(len(e.ID)) + ":" + e.ID + e.Nonce
}

// Expiry returns when e may be forgotten, given the time it is recorded and
// the skew window ttl. Without ExpiresAt the later of the observation time
// and the request timestamp is used, plus one second because freshness is
// judged in whole seconds.
func (e Entry) Expiry(now time.Time, ttl time.Duration) time.Time {
	if !e.ExpiresAt.IsZero() {
		return e.ExpiresAt
	}
	start := e.ObservedAt
	if start.IsZero() {
		start = now
	}
	if ts := time.Unix(e.Timestamp, 0); ts.After(start) {
		start = ts
	}
	return start.Add(ttl + time.Second)
}

func (e Entry) validate() error {
	if e.ID == "" || e.Nonce == "" {
		return ErrIncomplete
	}
	return nil
}

// Guard tracks accepted nonces.
//
// Seen is the replay check, consulted before any other validation.
// Remember is an atomic insert-if-absent run after the request has been
// fully verified; it returns false when the entry already exists, so that
// two racing requests with the same nonce cannot both be accepted.
//
// Implementations must be safe for concurrent use. Errors are hard
// failures: callers must not treat them as "not seen".
type Guard interface {
	Seen(ctx context.Context, e Entry) (bool, error)
	Remember(ctx context.Context, e Entry) (bool, error)
}

// GuardFuncs adapts a replay-check callback and a store callback to Guard.
// A nil SeenFunc reports every entry as unseen; a nil RememberFunc accepts
// every entry.
type GuardFuncs struct {
	SeenFunc     func(ctx context.Context, e Entry) (bool, error)
	RememberFunc func(ctx context.Context, e Entry) (bool, error)
}

func (g GuardFuncs) Seen(ctx context.Context, e Entry) (bool, error) {
	if g.SeenFunc == nil {
		return false, nil
	}
	return g.SeenFunc(ctx, e)
}

func (g GuardFuncs) Remember(ctx context.Context, e Entry) (bool, error) {
	if g.RememberFunc == nil {
		return true, nil
	}
	return g.RememberFunc(ctx, e)
}
