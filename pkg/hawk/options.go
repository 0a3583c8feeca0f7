package hawk

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/nonce"
)

// DefaultSkew is the default clock-skew tolerance.
const DefaultSkew = 60 * time.Second

// ExtVerifier checks the application-specific data bound into a message
// whose MAC has already been verified. Returning false downgrades the
// message to unauthenticated; an error aborts the attempt.
type ExtVerifier interface {
	VerifyExt(ctx context.Context, cred credential.Credential, ext string) (bool, error)
}

// ExtVerifierFunc adapts a function to ExtVerifier.
type ExtVerifierFunc func(ctx context.Context, cred credential.Credential, ext string) (bool, error)

// VerifyExt calls f(ctx, cred, ext).
func (f ExtVerifierFunc) VerifyExt(ctx context.Context, cred credential.Credential, ext string) (bool, error) {
	return f(ctx, cred, ext)
}

// ExtNormalizer produces the application-specific data to bind into an
// outgoing message.
type ExtNormalizer interface {
	NormalizeExt(ctx context.Context, cred credential.Credential) (string, error)
}

// ExtNormalizerFunc adapts a function to ExtNormalizer.
type ExtNormalizerFunc func(ctx context.Context, cred credential.Credential) (string, error)

// NormalizeExt calls f(ctx, cred).
func (f ExtNormalizerFunc) NormalizeExt(ctx context.Context, cred credential.Credential) (string, error) {
	return f(ctx, cred)
}

// StaticExt is an ExtNormalizer that always returns the same value.
type StaticExt string

func (s StaticExt) NormalizeExt(context.Context, credential.Credential) (string, error) {
	return string(s), nil
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Resolver looks up credentials by id. Required.
	Resolver credential.Resolver

	// Guard is the nonce replay guard. Default: a nonce.MemoryGuard whose
	// TTL is Skew, owned and closed by the Server.
	Guard nonce.Guard

	// Skew is the tolerated difference between request timestamps and the
	// server clock. Default: DefaultSkew.
	Skew time.Duration

	// LocalOffset is added to the server clock before any timestamp is
	// compared or issued.
	LocalOffset time.Duration

	// DisableServerAuthorization stops CreateServerAuthorization from
	// counter-signing successful responses.
	DisableServerAuthorization bool

	// DisableBewit rejects requests that carry a bewit.
	DisableBewit bool

	// RequirePayloadHash rejects header-authenticated requests that carry
	// no payload hash.
	RequirePayloadHash bool

	// HashResponse decides whether a response body is hashed into
	// Server-Authorization. Default: never.
	HashResponse func(resp base.ResponseMessage) bool

	// ExtVerifier checks the ext of authenticated requests.
	ExtVerifier ExtVerifier

	// ExtNormalizer supplies the ext of Server-Authorization.
	ExtNormalizer ExtNormalizer

	// Hosts resolves the host and port requests were addressed to.
	// Default: base.DefaultHostResolver.
	Hosts base.HostResolver

	// Limits bounds Authorization header parsing. Default:
	// artifacts.DefaultLimits().
	Limits *artifacts.Limits

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registerer receives server and default-guard metrics. Nil disables
	// metrics.
	Registerer prometheus.Registerer

	// Observer receives every authentication event. Default:
	// NewObserver(Logger, Registerer).
	Observer Observer

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Credential signs every request. Required.
	Credential credential.Credential

	// LocalOffset is added to the local clock when signing.
	LocalOffset time.Duration

	// DisableResponseValidation accepts responses without checking
	// Server-Authorization.
	DisableResponseValidation bool

	// DisableCompensation ignores timestamp challenges.
	DisableCompensation bool

	// Compensator holds the clock-skew estimate. Default: a new one owned
	// by the Client.
	Compensator *Compensator

	// HashPayload decides whether a request body is hashed. Default: never.
	HashPayload func(req base.RequestMessage) bool

	// RequireResponseHash rejects responses without a payload hash.
	RequireResponseHash bool

	// ExtNormalizer supplies the ext of outgoing requests.
	ExtNormalizer ExtNormalizer

	// ExtVerifier checks the ext of Server-Authorization.
	ExtVerifier ExtVerifier

	// Hosts resolves the signed host and port. Default:
	// base.DefaultHostResolver.
	Hosts base.HostResolver

	// NonceSize is the length of generated nonces. Default:
	// DefaultNonceSize.
	NonceSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}
