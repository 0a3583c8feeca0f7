package hawk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/bewit"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/nonce"
	"github.com/forcebit/hawk-go/pkg/signing"
)

// Header names.
const (
	HeaderAuthorization       = "Authorization"
	HeaderServerAuthorization = "Server-Authorization"
	HeaderWWWAuthenticate     = "WWW-Authenticate"
)

// Result is the outcome of Server.Authenticate.
//
// Only Authenticated distinguishes success from failure. A stale request
// additionally carries the Challenge that lets the client correct its
// clock; every other failure looks the same.
type Result struct {
	Authenticated bool
	Channel       Channel
	Credential    credential.Credential
	Artifacts     *artifacts.Artifacts
	Challenge     *artifacts.Challenge
}

type resultKey struct{}

// Server authenticates Hawk requests and signs responses. It is safe for
// concurrent use.
type Server struct {
	resolver credential.Resolver
	guard    nonce.Guard
	closer   io.Closer

	skew        time.Duration
	localOffset time.Duration
	now         func() time.Time

	serverAuthorization bool
	allowBewit          bool
	requireHash         bool
	hashResponse        func(base.ResponseMessage) bool

	extVerifier   ExtVerifier
	extNormalizer ExtNormalizer
	hosts         base.HostResolver
	limits        artifacts.Limits

	logger     *slog.Logger
	observer   Observer
	deprecated sync.Map // credential ids already warned about
}

// NewServer creates a Server with the provided options.
//
// Returns error if:
//   - no Resolver is configured
//   - Skew is negative
//   - the default nonce guard cannot be created
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	if opts.Skew < 0 {
		return nil, fmt.Errorf("clock skew must not be negative")
	}
	if opts.Skew == 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = NewObserver(opts.Logger, opts.Registerer)
	}

	limits := artifacts.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}

	s := &Server{
		resolver:            opts.Resolver,
		guard:               opts.Guard,
		skew:                opts.Skew,
		localOffset:         opts.LocalOffset,
		now:                 opts.Now,
		serverAuthorization: !opts.DisableServerAuthorization,
		allowBewit:          !opts.DisableBewit,
		requireHash:         opts.RequirePayloadHash,
		hashResponse:        opts.HashResponse,
		extVerifier:         opts.ExtVerifier,
		extNormalizer:       opts.ExtNormalizer,
		hosts:               opts.Hosts,
		limits:              limits,
		logger:              opts.Logger,
		observer:            opts.Observer,
	}

	if s.guard == nil {
		g, err := nonce.NewMemoryGuard(nonce.MemoryOptions{
			TTL:             opts.Skew,
			JanitorInterval: opts.Skew,
			Registerer:      opts.Registerer,
			Now:             opts.Now,
		})
		if err != nil {
			return nil, err
		}
		s.guard = g
		s.closer = g
	}
	return s, nil
}

// Close releases the default nonce guard. A Guard passed in ServerOptions
// is left open.
func (s *Server) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Authenticate authenticates req through its Authorization header or its
// bewit query parameter. A request that uses both is rejected.
//
// The returned error is non-nil only when a callback (resolver, guard,
// ext verifier) failed; callers must then treat the request as
// unauthenticated and answer with a server error. Authentication failures
// return a Result with Authenticated false and a nil error.
//
// The Result is also stored in req's value slot so that
// CreateServerAuthorization can find it.
func (s *Server) Authenticate(ctx context.Context, req base.RequestMessage) (*Result, error) {
	authorization := req.Header(HeaderAuthorization)
	rawQuery := ""
	if u := req.URL(); u != nil {
		rawQuery = u.RawQuery
	}
	hasBewit := bewit.Present(rawQuery)

	var (
		res *Result
		err error
	)
	switch {
	case authorization != "" && hasBewit:
		res = s.reject(ctx, ChannelNone, ReasonAmbiguous, "", nil)
	case hasBewit:
		res, err = s.authenticateBewit(ctx, req)
	case authorization != "":
		res, err = s.authenticateHeader(ctx, req, authorization)
	default:
		res = s.reject(ctx, ChannelNone, ReasonMissing, "", nil)
	}
	if err != nil {
		return nil, err
	}

	req.SetValue(resultKey{}, res)
	return res, nil
}

func (s *Server) authenticateHeader(ctx context.Context, req base.RequestMessage, authorization string) (*Result, error) {
	a, err := artifacts.ParseAuthorizationWithLimits(authorization, s.limits)
	if err != nil {
		return s.reject(ctx, ChannelHeader, ReasonMalformed, "", err), nil
	}

	entry := nonce.Entry{ID: a.ID, Nonce: a.Nonce, Timestamp: a.Timestamp}
	seen, err := s.guard.Seen(ctx, entry)
	if err != nil {
		return nil, s.fail(ctx, ChannelHeader, a.ID, fmt.Errorf("nonce replay check: %w", err))
	}
	if seen {
		return s.reject(ctx, ChannelHeader, ReasonReplay, a.ID, nil), nil
	}

	cred, crypto, reason, err := s.resolve(ctx, a.ID)
	if err != nil {
		return nil, s.fail(ctx, ChannelHeader, a.ID, err)
	}
	if reason != ReasonNone {
		return s.reject(ctx, ChannelHeader, reason, a.ID, nil), nil
	}

	target, err := base.TargetOf(req, s.hosts)
	if err != nil {
		return s.reject(ctx, ChannelHeader, ReasonMalformed, a.ID, err), nil
	}
	if !crypto.VerifyMAC(base.KindHeader, a, target) {
		return s.reject(ctx, ChannelHeader, ReasonBadMAC, a.ID, nil), nil
	}

	switch {
	case len(a.Hash) > 0:
		body, err := req.Body()
		if err != nil {
			return s.reject(ctx, ChannelHeader, ReasonBadHash, a.ID, err), nil
		}
		if !crypto.IsValidPayloadHash(req.ContentType(), body, a.Hash) {
			return s.reject(ctx, ChannelHeader, ReasonBadHash, a.ID, nil), nil
		}
	case s.requireHash:
		return s.reject(ctx, ChannelHeader, ReasonMissingHash, a.ID, nil), nil
	}

	now := base.UnixSeconds(s.now(), s.localOffset)
	if !s.fresh(a.Timestamp, now) {
		challenge := &artifacts.Challenge{Timestamp: now, TSM: crypto.TimestampMAC(now)}
		s.observer.Observe(ctx, Event{Channel: ChannelHeader, Outcome: OutcomeChallenged, Reason: ReasonStale, ID: a.ID})
		return &Result{Channel: ChannelHeader, Challenge: challenge}, nil
	}

	entry.ObservedAt = s.now()
	entry.ExpiresAt = s.staleAt(a.Timestamp)
	stored, err := s.guard.Remember(ctx, entry)
	if err != nil {
		return nil, s.fail(ctx, ChannelHeader, a.ID, fmt.Errorf("nonce store: %w", err))
	}
	if !stored {
		return s.reject(ctx, ChannelHeader, ReasonReplay, a.ID, nil), nil
	}

	return s.accept(ctx, ChannelHeader, cred, a)
}

func (s *Server) authenticateBewit(ctx context.Context, req base.RequestMessage) (*Result, error) {
	if !s.allowBewit {
		return s.reject(ctx, ChannelBewit, ReasonBewitDisabled, "", nil), nil
	}

	res, err := bewit.Authenticate(ctx, req, s.resolver, bewit.AuthenticateOptions{
		Now:         s.now(),
		LocalOffset: s.localOffset,
		Hosts:       s.hosts,
	})
	if err != nil {
		if !errors.Is(err, bewit.ErrRejected) {
			return nil, s.fail(ctx, ChannelBewit, "", err)
		}
		return s.reject(ctx, ChannelBewit, bewitReason(err), "", err), nil
	}

	s.warnDeprecated(ctx, res.Credential)
	return s.accept(ctx, ChannelBewit, res.Credential, res.Artifacts)
}

func bewitReason(err error) Reason {
	switch {
	case errors.Is(err, bewit.ErrMethod):
		return ReasonMethod
	case errors.Is(err, bewit.ErrAmbiguous):
		return ReasonAmbiguous
	case errors.Is(err, bewit.ErrMissing):
		return ReasonMissing
	case errors.Is(err, bewit.ErrExpired):
		return ReasonExpired
	case errors.Is(err, bewit.ErrUnknownCredential):
		return ReasonUnknownCredential
	case errors.Is(err, bewit.ErrBadMAC):
		return ReasonBadMAC
	default:
		return ReasonMalformed
	}
}

// resolve looks up id. A non-empty Reason means the credential is unknown
// or unusable; a non-nil error means the resolver itself failed.
func (s *Server) resolve(ctx context.Context, id string) (credential.Credential, *signing.Cryptographer, Reason, error) {
	cred, err := s.resolver.Resolve(ctx, id)
	if errors.Is(err, credential.ErrUnknown) {
		return credential.Credential{}, nil, ReasonUnknownCredential, nil
	}
	if err != nil {
		return credential.Credential{}, nil, ReasonNone, fmt.Errorf("resolve credential: %w", err)
	}

	crypto, err := cred.Cryptographer()
	if err != nil {
		s.logger.WarnContext(ctx, "hawk credential unusable", slog.String("id", id), slog.Any("error", err))
		return credential.Credential{}, nil, ReasonUnknownCredential, nil
	}
	s.warnDeprecated(ctx, cred)
	return cred, crypto, ReasonNone, nil
}

func (s *Server) warnDeprecated(ctx context.Context, cred credential.Credential) {
	if !cred.Algorithm.Deprecated() {
		return
	}
	if _, loaded := s.deprecated.LoadOrStore(cred.ID, struct{}{}); loaded {
		return
	}
	s.logger.WarnContext(ctx, "hawk credential uses a deprecated algorithm",
		slog.String("id", cred.ID), slog.String("algorithm", cred.Algorithm.String()))
}

// fresh reports whether ts is within the skew window around now. Both are
// whole seconds, so a timestamp exactly Skew away is still fresh.
func (s *Server) fresh(ts, now int64) bool {
	diff := now - ts
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff)*time.Second <= s.skew
}

// staleAt is the first server-clock instant at which a request stamped ts
// fails the freshness check. Its nonce must be remembered until then.
func (s *Server) staleAt(ts int64) time.Time {
	window := s.skew.Truncate(time.Second) + time.Second
	return time.Unix(ts, 0).Add(window - s.localOffset)
}

func (s *Server) accept(ctx context.Context, ch Channel, cred credential.Credential, a *artifacts.Artifacts) (*Result, error) {
	if s.extVerifier != nil {
		ok, err := s.extVerifier.VerifyExt(ctx, cred, a.Ext)
		if err != nil {
			return nil, s.fail(ctx, ch, a.ID, fmt.Errorf("verify ext: %w", err))
		}
		if !ok {
			return s.reject(ctx, ch, ReasonExt, a.ID, nil), nil
		}
	}

	s.observer.Observe(ctx, Event{Channel: ch, Outcome: OutcomeAccepted, ID: a.ID})
	return &Result{Authenticated: true, Channel: ch, Credential: cred, Artifacts: a}, nil
}

func (s *Server) reject(ctx context.Context, ch Channel, reason Reason, id string, err error) *Result {
	s.observer.Observe(ctx, Event{Channel: ch, Outcome: OutcomeRejected, Reason: reason, ID: id, Err: err})
	return &Result{Channel: ch}
}

func (s *Server) fail(ctx context.Context, ch Channel, id string, err error) error {
	s.observer.Observe(ctx, Event{Channel: ch, Outcome: OutcomeError, Reason: ReasonCallback, ID: id, Err: err})
	return err
}

// CreateServerAuthorization completes the exchange on resp.
//
// For a 401 it sets WWW-Authenticate, carrying the timestamp challenge
// when the request was stale. For other statuses it sets
// Server-Authorization, unless counter-signing is disabled or the request
// was not authenticated through its Authorization header.
//
// res may be nil, in which case the Result stored on req by Authenticate
// is used.
func (s *Server) CreateServerAuthorization(ctx context.Context, req base.RequestMessage, resp base.ResponseMessage, res *Result) error {
	if res == nil {
		res, _ = req.Value(resultKey{}).(*Result)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		var challenge artifacts.Challenge
		if res != nil && res.Challenge != nil {
			challenge = *res.Challenge
		}
		resp.SetHeader(HeaderWWWAuthenticate, challenge.String())
		return nil
	}

	if !s.serverAuthorization || res == nil || !res.Authenticated || res.Channel != ChannelHeader {
		return nil
	}

	crypto, err := res.Credential.Cryptographer()
	if err != nil {
		return err
	}
	target, err := base.TargetOf(req, s.hosts)
	if err != nil {
		return fmt.Errorf("resolve response target: %w", err)
	}

	ra := &artifacts.Artifacts{ID: res.Artifacts.ID, Timestamp: res.Artifacts.Timestamp, Nonce: res.Artifacts.Nonce}
	if s.extNormalizer != nil {
		ext, err := s.extNormalizer.NormalizeExt(ctx, res.Credential)
		if err != nil {
			return fmt.Errorf("normalize response ext: %w", err)
		}
		if !artifacts.ValidValue(ext) {
			return fmt.Errorf("%w: response ext contains characters not allowed in a header value", artifacts.ErrInvalidHeader)
		}
		ra.Ext = ext
	}

	var payload *signing.Payload
	if s.hashResponse != nil && s.hashResponse(resp) {
		body, err := resp.Body()
		if err != nil {
			return err
		}
		payload = &signing.Payload{ContentType: resp.ContentType(), Body: body}
	}

	if err := crypto.Sign(base.KindResponse, ra, target, payload); err != nil {
		return err
	}
	resp.SetHeader(HeaderServerAuthorization, ra.ResponseHeader())
	return nil
}
