// Package credential defines the Hawk credential and the resolvers that look
// one up by id: a static map, a YAML/TOML file and a SQL table via GORM.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/forcebit/hawk-go/pkg/signing"
)

// ErrUnknown is returned by resolvers when no credential exists for an id.
// Servers treat it as an authentication failure; every other resolver error
// aborts authentication.
var ErrUnknown = errors.New("unknown credential")

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid credential")

// Credential is a Hawk identity: id, shared key and MAC algorithm. User is
// an optional application-level principal.
type Credential struct {
	ID        string
	Key       []byte
	Algorithm signing.Algorithm
	User      string
}

// Validate reports whether c can be used to sign or verify.
//
// Returns error if:
//   - ID is empty
//   - Key is empty
//   - Algorithm is not supported
func (c Credential) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalid)
	}
	if len(c.Key) == 0 {
		return fmt.Errorf("%w: key is empty for %q", ErrInvalid, c.ID)
	}
	if !c.Algorithm.Valid() {
		return fmt.Errorf("%w: unsupported algorithm for %q", ErrInvalid, c.ID)
	}
	return nil
}

// Cryptographer returns the cryptographer bound to c's key and algorithm.
func (c Credential) Cryptographer() (*signing.Cryptographer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return signing.NewCryptographer(c.Algorithm, c.Key)
}

// Resolver looks up a credential by id.
//
// Implementations return ErrUnknown (possibly wrapped) for ids they do not
// know. They must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Credential, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, id string) (Credential, error)

// Resolve calls f(ctx, id).
func (f ResolverFunc) Resolve(ctx context.Context, id string) (Credential, error) {
	return f(ctx, id)
}

// StaticResolver serves credentials from an in-memory map keyed by id.
// It must not be modified after first use.
type StaticResolver map[string]Credential

// NewStaticResolver indexes creds by id.
//
// Returns error if a credential is invalid or an id repeats.
func NewStaticResolver(creds ...Credential) (StaticResolver, error) {
	r := make(StaticResolver, len(creds))
	for _, c := range creds {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r[c.ID]; dup {
			return nil, fmt.Errorf("duplicate credential id %q", c.ID)
		}
		r[c.ID] = c
	}
	return r, nil
}

func (r StaticResolver) Resolve(_ context.Context, id string) (Credential, error) {
	c, ok := r[id]
	if !ok {
		return Credential{}, ErrUnknown
	}
	return c, nil
}
