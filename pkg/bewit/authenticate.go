package bewit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/credential"
)

// CreateOptions configures Create.
type CreateOptions struct {
	// TTL is how long the bewit stays valid. Required.
	TTL time.Duration

	// Ext is bound into the MAC and returned to the server verbatim.
	Ext string

	// Now is the signing time. Default: time.Now().
	Now time.Time

	// LocalOffset is added to Now before computing the expiry.
	LocalOffset time.Duration

	// Hosts resolves the signed host and port. Default: base.DefaultHostResolver.
	Hosts base.HostResolver
}

// Create signs req and returns the bewit string to append as the "bewit"
// query parameter. req must not already carry one.
//
// Returns error if:
//   - the method is not GET (before any cryptographic work)
//   - TTL is not positive
//   - the credential is invalid
//   - id or ext contains a backslash
//   - the host cannot be resolved
func Create(req base.RequestMessage, cred credential.Credential, opts CreateOptions) (string, error) {
	if !strings.EqualFold(req.Method(), http.MethodGet) {
		return "", ErrMethod
	}
	if opts.TTL <= 0 {
		return "", fmt.Errorf("bewit ttl must be positive")
	}
	if strings.Contains(cred.ID, separator) || strings.Contains(opts.Ext, separator) {
		return "", fmt.Errorf("bewit id and ext must not contain %q", separator)
	}
	crypto, err := cred.Cryptographer()
	if err != nil {
		return "", err
	}
	target, err := base.TargetOf(req, opts.Hosts)
	if err != nil {
		return "", fmt.Errorf("resolve bewit target: %w", err)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	expiry := base.UnixSeconds(now, opts.LocalOffset) + int64(opts.TTL/time.Second)
	if opts.TTL%time.Second != 0 {
		expiry++
	}

	a := &artifacts.Artifacts{ID: cred.ID, Timestamp: expiry, Ext: opts.Ext}
	if err := crypto.Sign(base.KindBewit, a, target, nil); err != nil {
		return "", err
	}

	return Bewit{ID: cred.ID, Expiry: expiry, MAC: a.MAC, Ext: opts.Ext}.Encode(), nil
}

// AuthenticateOptions configures Authenticate.
type AuthenticateOptions struct {
	// Now is the verification time. Default: time.Now().
	Now time.Time

	// LocalOffset is added to Now before the expiry check.
	LocalOffset time.Duration

	// Hosts resolves the signed host and port. Default: base.DefaultHostResolver.
	Hosts base.HostResolver
}

// Result is a successfully authenticated bewit.
type Result struct {
	Credential credential.Credential
	Bewit      Bewit

	// Artifacts is the parameter set the MAC was verified over.
	Artifacts *artifacts.Artifacts
}

// Authenticate verifies the bewit carried by req.
//
// The MAC covers the query without the bewit parameter. On success that
// parameter is removed from req so handlers never see it; a rejected
// request is left untouched. Rejections
// match ErrRejected; resolver failures other than credential.ErrUnknown
// are returned as-is.
func Authenticate(ctx context.Context, req base.RequestMessage, resolver credential.Resolver, opts AuthenticateOptions) (*Result, error) {
	if !strings.EqualFold(req.Method(), http.MethodGet) {
		return nil, ErrMethod
	}
	if req.Header("Authorization") != "" {
		return nil, ErrAmbiguous
	}

	rawQuery := ""
	if u := req.URL(); u != nil {
		rawQuery = u.RawQuery
	}
	value, stripped, found, err := Extract(rawQuery)
	if err != nil {
		return nil, err
	}
	if !found || value == "" {
		return nil, ErrMissing
	}

	b, err := Decode(value)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	if b.Expiry*1000 <= now.Add(opts.LocalOffset).UnixMilli() {
		return nil, ErrExpired
	}

	cred, err := resolver.Resolve(ctx, b.ID)
	if errors.Is(err, credential.ErrUnknown) {
		return nil, ErrUnknownCredential
	}
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	crypto, err := cred.Cryptographer()
	if err != nil {
		return nil, ErrUnknownCredential
	}

	target, err := base.TargetOf(req, opts.Hosts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	target.Query = stripped

	a := &artifacts.Artifacts{ID: b.ID, Timestamp: b.Expiry, Ext: b.Ext, MAC: b.MAC}
	if !crypto.VerifyMAC(base.KindBewit, a, target) {
		return nil, ErrBadMAC
	}
	req.SetRawQuery(stripped)

	return &Result{Credential: cred, Bewit: b, Artifacts: a}, nil
}
