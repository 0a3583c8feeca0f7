package signing

import (
	"errors"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
)

// Payload is a message body together with its content type.
type Payload struct {
	ContentType string
	Body        string
}

// ErrInvalidKind is returned when a canonical-string kind is not one of the
// request-form kinds.
var ErrInvalidKind = errors.New("invalid canonical string kind")

// RequestString builds the canonical string a MAC over a and target covers.
func RequestString(kind base.Kind, a *artifacts.Artifacts, target base.Target) string {
	return base.NormalizedRequest(kind, target.Fields(a.Timestamp, a.Nonce, a.HashString(), a.Ext))
}

// Sign fills in a.Hash (when payload is non-nil) and a.MAC.
//
// A nil payload leaves a.Hash untouched, so a hash computed elsewhere is
// still covered by the MAC.
func (c *Cryptographer) Sign(kind base.Kind, a *artifacts.Artifacts, target base.Target, payload *Payload) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if payload != nil {
		a.Hash = c.PayloadHash(payload.ContentType, payload.Body)
	}
	a.MAC = c.ComputeHMAC([]byte(RequestString(kind, a, target)))
	return nil
}

// VerifyMAC reports whether a.MAC is the MAC of the canonical string built
// from a and target.
func (c *Cryptographer) VerifyMAC(kind base.Kind, a *artifacts.Artifacts, target base.Target) bool {
	if !kind.Valid() {
		return false
	}
	return c.IsValidMAC([]byte(RequestString(kind, a, target)), a.MAC)
}
