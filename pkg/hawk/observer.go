package hawk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Channel is the way a request presented its credentials.
type Channel string

const (
	ChannelNone   Channel = "none"
	ChannelHeader Channel = "header"
	ChannelBewit  Channel = "bewit"
)

// Outcome is the result class of one authentication attempt.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeChallenged Outcome = "challenged"
	OutcomeError      Outcome = "error"
)

// Reason says why an attempt was not accepted.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMissing           Reason = "missing"
	ReasonAmbiguous         Reason = "ambiguous"
	ReasonMalformed         Reason = "malformed"
	ReasonReplay            Reason = "replay"
	ReasonUnknownCredential Reason = "unknown_credential"
	ReasonBadMAC            Reason = "bad_mac"
	ReasonBadHash           Reason = "bad_hash"
	ReasonMissingHash       Reason = "missing_hash"
	ReasonStale             Reason = "stale"
	ReasonExt               Reason = "ext_rejected"
	ReasonExpired           Reason = "expired"
	ReasonMethod            Reason = "method"
	ReasonBewitDisabled     Reason = "bewit_disabled"
	ReasonCallback          Reason = "callback_failed"
)

// Event describes one server-side authentication attempt.
type Event struct {
	Channel Channel
	Outcome Outcome
	Reason  Reason
	ID      string // credential id, when one was presented
	Err     error  // underlying error, when there was one
}

// Observer receives every authentication Event. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f(ctx, e).
func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// Observers fans an event out to several observers in order.
type Observers []Observer

func (obs Observers) Observe(ctx context.Context, e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ctx, e)
		}
	}
}

// NewObserver returns the default Observer: it logs through logger and,
// when reg is non-nil, counts events in
// hawk_server_authentications_total{channel,outcome,reason}.
//
// Replays are logged at warn level so that they stand out from ordinary
// MAC failures.
func NewObserver(logger *slog.Logger, reg prometheus.Registerer) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &defaultObserver{logger: logger}
	if reg != nil {
		o.total = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hawk_server_authentications_total",
			Help: "Hawk authentication attempts by channel, outcome and reason.",
		}, []string{"channel", "outcome", "reason"}))
	}
	return o
}

type defaultObserver struct {
	logger *slog.Logger
	total  *prometheus.CounterVec
}

func (o *defaultObserver) Observe(ctx context.Context, e Event) {
	if o.total != nil {
		o.total.WithLabelValues(string(e.Channel), string(e.Outcome), string(e.Reason)).Inc()
	}

	attrs := []any{
		slog.String("channel", string(e.Channel)),
		slog.String("outcome", string(e.Outcome)),
	}
	if e.Reason != ReasonNone {
		attrs = append(attrs, slog.String("reason", string(e.Reason)))
	}
	if e.ID != "" {
		attrs = append(attrs, slog.String("id", e.ID))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}

	switch {
	case e.Outcome == OutcomeError:
		o.logger.ErrorContext(ctx, "hawk authentication aborted", attrs...)
	case e.Reason == ReasonReplay:
		o.logger.WarnContext(ctx, "hawk nonce replay rejected", attrs...)
	case e.Outcome == OutcomeAccepted:
		o.logger.DebugContext(ctx, "hawk request authenticated", attrs...)
	default:
		o.logger.InfoContext(ctx, "hawk request not authenticated", attrs...)
	}
}

// registerCounterVec returns the already registered vector when an
// identical one exists, so several servers can share a registry.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
