// Package artifacts implements the Hawk parameter set {id, ts, nonce, ext,
// mac, hash, tsm} and its header wire format.
//
// Parsing is exhaustive: every byte of the header must belong to a
// well-formed key="value" pair, keys come from the fixed set above and may
// not repeat. Anything else is rejected as a whole; no partial result is
// ever returned.
//
// # Wire Forms
//
//	Authorization:        Hawk id="..", ts="..", nonce="..", ext="..", mac="..", hash=".."
//	Server-Authorization: Hawk ext="..", mac="..", hash=".."
//	WWW-Authenticate:     Hawk ts="..", tsm=".."
package artifacts

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/forcebit/hawk-go/pkg/base"
)

// Artifacts is the parameter set of one Hawk exchange.
//
// A client request carries ID, Timestamp, Nonce and MAC, optionally Ext and
// Hash. A server response carries MAC, optionally Ext and Hash; the request's
// ID, Timestamp and Nonce are implied.
type Artifacts struct {
	ID        string
	Timestamp int64
	Nonce     string
	Ext       string
	MAC       []byte
	Hash      []byte
	TSM       []byte
}

// Clone returns a deep copy of a.
func (a *Artifacts) Clone() *Artifacts {
	c := *a
	c.MAC = bytes.Clone(a.MAC)
	c.Hash = bytes.Clone(a.Hash)
	c.TSM = bytes.Clone(a.TSM)
	return &c
}

// HashString returns the base64 payload hash, or "" when absent.
func (a *Artifacts) HashString() string {
	if len(a.Hash) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(a.Hash)
}

// ParseAuthorization parses a request Authorization header value with
// DefaultLimits.
//
// Returns error if:
//   - the scheme is not Hawk
//   - the parameter string is malformed (see package doc)
//   - any of id, ts, nonce or mac is missing
//   - ts is not a non-negative decimal integer
//   - mac, hash or tsm is not standard base64
func ParseAuthorization(header string) (*Artifacts, error) {
	return ParseAuthorizationWithLimits(header, DefaultLimits())
}

// ParseAuthorizationWithLimits is ParseAuthorization with explicit limits.
func ParseAuthorizationWithLimits(header string, limits Limits) (*Artifacts, error) {
	ps, err := parseHeader(header, limits)
	if err != nil {
		return nil, err
	}

	for _, key := range []string{KeyID, KeyTS, KeyNonce, KeyMAC} {
		if !ps.has(key) {
			return nil, fmt.Errorf("%w: missing %q parameter", ErrInvalidHeader, key)
		}
	}

	return fromParams(ps)
}

// ParseServerAuthorization parses a Server-Authorization header value.
// Only ext, mac and hash are allowed, and mac is required.
func ParseServerAuthorization(header string) (*Artifacts, error) {
	ps, err := parseHeader(header, DefaultLimits())
	if err != nil {
		return nil, err
	}

	for _, key := range []string{KeyID, KeyTS, KeyNonce, KeyTSM} {
		if _, ok := ps[key]; ok {
			return nil, fmt.Errorf("%w: %q not allowed in server authorization", ErrInvalidHeader, key)
		}
	}
	if !ps.has(KeyMAC) {
		return nil, fmt.Errorf("%w: missing %q parameter", ErrInvalidHeader, KeyMAC)
	}

	return fromParams(ps)
}

func parseHeader(header string, limits Limits) (params, error) {
	p := newParser(header, limits)
	if err := p.checkInputLength(); err != nil {
		return nil, err
	}
	more, err := p.parseScheme(base.Scheme)
	if err != nil {
		return nil, err
	}
	if !more {
		return params{}, nil
	}
	return p.parseParams()
}

func fromParams(ps params) (*Artifacts, error) {
	a := &Artifacts{
		ID:    ps[KeyID],
		Nonce: ps[KeyNonce],
		Ext:   ps[KeyExt],
	}

	if ps.has(KeyTS) {
		ts, err := ParseTimestamp(ps[KeyTS])
		if err != nil {
			return nil, err
		}
		a.Timestamp = ts
	}

	var err error
	if a.MAC, err = decodeBase64(ps, KeyMAC); err != nil {
		return nil, err
	}
	if a.Hash, err = decodeBase64(ps, KeyHash); err != nil {
		return nil, err
	}
	if a.TSM, err = decodeBase64(ps, KeyTSM); err != nil {
		return nil, err
	}
	return a, nil
}

// ParseTimestamp parses a decimal unix-seconds value. Signs, spaces and
// leading '+' are rejected.
func ParseTimestamp(s string) (int64, error) {
	if s == "" || len(s) > 19 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidHeader, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidHeader, s)
		}
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidHeader, s)
	}
	return ts, nil
}

func decodeBase64(ps params, key string) ([]byte, error) {
	if !ps.has(key) {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(ps[key])
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not valid base64", ErrInvalidHeader, key)
	}
	return b, nil
}

// Header serializes the full form used for the request Authorization
// header. Empty ext and hash are omitted.
func (a *Artifacts) Header() string {
	var sb strings.Builder
	sb.WriteString(base.Scheme)
	sb.WriteByte(' ')

	writeParam(&sb, KeyID, a.ID)
	writeParam(&sb, KeyTS, strconv.FormatInt(a.Timestamp, 10))
	writeParam(&sb, KeyNonce, a.Nonce)
	a.writeResponseParams(&sb)

	return strings.TrimSuffix(sb.String(), ", ")
}

// ResponseHeader serializes the partial form used for the
// Server-Authorization header.
func (a *Artifacts) ResponseHeader() string {
	var sb strings.Builder
	sb.WriteString(base.Scheme)
	sb.WriteByte(' ')

	a.writeResponseParams(&sb)

	return strings.TrimSuffix(sb.String(), ", ")
}

func (a *Artifacts) writeResponseParams(sb *strings.Builder) {
	if a.Ext != "" {
		writeParam(sb, KeyExt, a.Ext)
	}
	writeParam(sb, KeyMAC, base64.StdEncoding.EncodeToString(a.MAC))
	if len(a.Hash) > 0 {
		writeParam(sb, KeyHash, a.HashString())
	}
}

func writeParam(sb *strings.Builder, key, value string) {
	sb.WriteString(key)
	sb.WriteString(`="`)
	sb.WriteString(value)
	sb.WriteString(`", `)
}

// Validate reports whether every string field can be serialized.
func (a *Artifacts) Validate() error {
	for key, v := range map[string]string{KeyID: a.ID, KeyNonce: a.Nonce, KeyExt: a.Ext} {
		if !ValidValue(v) {
			return fmt.Errorf("%w: %q contains characters not allowed in a header value", ErrInvalidHeader, key)
		}
	}
	if a.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrInvalidHeader)
	}
	return nil
}
