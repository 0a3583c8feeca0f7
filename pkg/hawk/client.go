package hawk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/bewit"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/signing"
)

// Client signs requests with one credential and validates the server's
// responses. It is safe for concurrent use.
type Client struct {
	cred   credential.Credential
	crypto *signing.Cryptographer

	localOffset time.Duration
	compensator *Compensator
	compensate  bool
	validate    bool
	requireHash bool
	hashPayload func(base.RequestMessage) bool
	nonceSize   int
	now         func() time.Time
	hosts       base.HostResolver
	logger      *slog.Logger

	extNormalizer ExtNormalizer
	extVerifier   ExtVerifier
}

// NewClient creates a Client with the provided options.
//
// Returns error if the credential is invalid.
func NewClient(opts ClientOptions) (*Client, error) {
	crypto, err := opts.Credential.Cryptographer()
	if err != nil {
		return nil, err
	}
	if opts.Compensator == nil {
		opts.Compensator = &Compensator{}
	}
	if opts.NonceSize <= 0 {
		opts.NonceSize = DefaultNonceSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Credential.Algorithm.Deprecated() {
		opts.Logger.Warn("hawk credential uses a deprecated algorithm",
			slog.String("id", opts.Credential.ID), slog.String("algorithm", opts.Credential.Algorithm.String()))
	}

	return &Client{
		cred:          opts.Credential,
		crypto:        crypto,
		localOffset:   opts.LocalOffset,
		compensator:   opts.Compensator,
		compensate:    !opts.DisableCompensation,
		validate:      !opts.DisableResponseValidation,
		requireHash:   opts.RequireResponseHash,
		hashPayload:   opts.HashPayload,
		nonceSize:     opts.NonceSize,
		now:           opts.Now,
		hosts:         opts.Hosts,
		logger:        opts.Logger,
		extNormalizer: opts.ExtNormalizer,
		extVerifier:   opts.ExtVerifier,
	}, nil
}

// Credential returns the signing credential.
func (c *Client) Credential() credential.Credential {
	return c.cred
}

// Compensator returns the clock-skew holder the client signs with.
func (c *Client) Compensator() *Compensator {
	return c.compensator
}

// Timestamp returns the timestamp the next request will be signed with:
// the local clock plus LocalOffset plus the learned skew.
func (c *Client) Timestamp() int64 {
	return base.UnixSeconds(c.now(), c.localOffset+c.compensator.Offset())
}

// Sign sets the Authorization header of req and returns the artifacts it
// carries. Keep them: Authenticate needs them to validate the response.
//
// Returns error if:
//   - the ext normalizer fails or yields characters not allowed in a header
//   - the body cannot be read for payload hashing
//   - the host cannot be resolved
func (c *Client) Sign(ctx context.Context, req base.RequestMessage) (*artifacts.Artifacts, error) {
	n, err := NewNonce(c.nonceSize)
	if err != nil {
		return nil, err
	}

	a := &artifacts.Artifacts{ID: c.cred.ID, Timestamp: c.Timestamp(), Nonce: n}
	if c.extNormalizer != nil {
		if a.Ext, err = c.extNormalizer.NormalizeExt(ctx, c.cred); err != nil {
			return nil, fmt.Errorf("normalize request ext: %w", err)
		}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	target, err := base.TargetOf(req, c.hosts)
	if err != nil {
		return nil, fmt.Errorf("resolve request target: %w", err)
	}

	var payload *signing.Payload
	if c.hashPayload != nil && c.hashPayload(req) {
		body, err := req.Body()
		if err != nil {
			return nil, err
		}
		payload = &signing.Payload{ContentType: req.ContentType(), Body: body}
	}

	if err := c.crypto.Sign(base.KindHeader, a, target, payload); err != nil {
		return nil, err
	}
	req.SetHeader(HeaderAuthorization, a.Header())
	return a, nil
}

// Authenticate validates resp against the request signed with a.
//
// A 401 is never authenticated; its timestamp challenge, if any, is fed to
// HandleChallenge. Otherwise, unless validation is disabled, the
// Server-Authorization MAC (and payload hash, when present) must verify
// against req and a, and the ext verifier must accept the server's ext.
// The returned error is non-nil only when a callback failed.
func (c *Client) Authenticate(ctx context.Context, req base.RequestMessage, resp base.ResponseMessage, a *artifacts.Artifacts) (bool, error) {
	if resp.StatusCode() == http.StatusUnauthorized {
		c.HandleChallenge(resp)
		return false, nil
	}
	if !c.validate {
		return true, nil
	}

	header := resp.Header(HeaderServerAuthorization)
	if header == "" {
		c.logger.DebugContext(ctx, "hawk response has no Server-Authorization")
		return false, nil
	}
	sa, err := artifacts.ParseServerAuthorization(header)
	if err != nil {
		c.logger.DebugContext(ctx, "hawk response Server-Authorization malformed", slog.Any("error", err))
		return false, nil
	}

	ra := a.Clone()
	ra.Ext, ra.MAC, ra.Hash = sa.Ext, sa.MAC, sa.Hash

	target, err := base.TargetOf(req, c.hosts)
	if err != nil {
		return false, nil
	}
	if !c.crypto.VerifyMAC(base.KindResponse, ra, target) {
		return false, nil
	}

	switch {
	case len(ra.Hash) > 0:
		body, err := resp.Body()
		if err != nil {
			return false, err
		}
		if !c.crypto.IsValidPayloadHash(resp.ContentType(), body, ra.Hash) {
			return false, nil
		}
	case c.requireHash:
		return false, nil
	}

	if c.extVerifier != nil {
		ok, err := c.extVerifier.VerifyExt(ctx, c.cred, ra.Ext)
		if err != nil {
			return false, fmt.Errorf("verify response ext: %w", err)
		}
		return ok, nil
	}
	return true, nil
}

// HandleChallenge reads the WWW-Authenticate timestamp challenge of resp.
// When its tsm verifies under the client's credential and compensation is
// enabled, the learned skew is stored and HandleChallenge returns true; the
// next Sign uses the corrected timestamp.
func (c *Client) HandleChallenge(resp base.ResponseMessage) bool {
	header := resp.Header(HeaderWWWAuthenticate)
	if header == "" || !c.compensate {
		return false
	}
	challenge, err := artifacts.ParseChallenge(header)
	if err != nil || !challenge.HasTimestamp() {
		return false
	}
	if !c.crypto.IsValidTimestampMAC(challenge.Timestamp, challenge.TSM) {
		c.logger.Warn("hawk challenge tsm invalid", slog.Int64("ts", challenge.Timestamp))
		return false
	}

	local := base.UnixSeconds(c.now(), c.localOffset)
	skew := c.compensator.Update(func(int64) int64 { return challenge.Timestamp - local })
	c.logger.Info("hawk clock skew corrected", slog.Int64("skew_seconds", skew))
	return true
}

// CreateBewit returns a bewit for req valid for ttl, using the client's
// credential and clock correction.
func (c *Client) CreateBewit(req base.RequestMessage, ttl time.Duration, ext string) (string, error) {
	return bewit.Create(req, c.cred, bewit.CreateOptions{
		TTL:         ttl,
		Ext:         ext,
		Now:         c.now(),
		LocalOffset: c.localOffset + c.compensator.Offset(),
		Hosts:       c.hosts,
	})
}
