// Package bewit implements Hawk bewits: time-limited, GET-only capability
// tokens carried in the "bewit" query parameter.
//
// A bewit is base64url(id \ expiry \ mac \ ext), where mac is the Hawk MAC
// of the request under the "bewit" canonical kind with an empty nonce and
// the expiry as timestamp. Bewits carry no nonce and are not tracked for
// replay; expiry is their only limit.
package bewit

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// QueryParam is the name of the query parameter carrying a bewit.
const QueryParam = "bewit"

const separator = "\\"

// ErrRejected matches every rejection reason below with errors.Is.
// Rejections mean "not authenticated"; any other error from Authenticate
// is a failure of a collaborator and must abort the request.
var ErrRejected = errors.New("bewit rejected")

type rejection string

func (r rejection) Error() string        { return string(r) }
func (r rejection) Is(target error) bool { return target == ErrRejected }

// Rejection reasons.
var (
	ErrMethod            error = rejection("bewit: only GET requests may carry a bewit")
	ErrAmbiguous         error = rejection("bewit: request also carries an Authorization header")
	ErrMissing           error = rejection("bewit: no bewit parameter")
	ErrMalformed         error = rejection("bewit: malformed")
	ErrExpired           error = rejection("bewit: expired")
	ErrUnknownCredential error = rejection("bewit: unknown or invalid credential")
	ErrBadMAC            error = rejection("bewit: bad mac")
)

// Bewit is the decoded token.
type Bewit struct {
	ID     string
	Expiry int64 // unix seconds
	MAC    []byte
	Ext    string
}

// Encode returns the unpadded base64url form.
func (b Bewit) Encode() string {
	raw := b.ID + separator +
		strconv.FormatInt(b.Expiry, 10) + separator +
		base64.StdEncoding.EncodeToString(b.MAC) + separator +
		b.Ext
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a bewit string. Both padded and unpadded base64url input
// is accepted.
//
// Returns ErrMalformed if:
//   - the string is not base64url
//   - it does not split into exactly four fields
//   - id, expiry or mac is empty
//   - expiry is not a non-negative decimal integer
//   - mac is not standard base64
func Decode(s string) (Bewit, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return Bewit{}, fmt.Errorf("%w: invalid encoding", ErrMalformed)
	}

	parts := strings.Split(string(raw), separator)
	if len(parts) != 4 {
		return Bewit{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformed, len(parts))
	}
	if parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Bewit{}, fmt.Errorf("%w: missing field", ErrMalformed)
	}

	for i := 0; i < len(parts[1]); i++ {
		if parts[1][i] < '0' || parts[1][i] > '9' {
			return Bewit{}, fmt.Errorf("%w: invalid expiry", ErrMalformed)
		}
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Bewit{}, fmt.Errorf("%w: invalid expiry", ErrMalformed)
	}

	mac, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return Bewit{}, fmt.Errorf("%w: invalid mac encoding", ErrMalformed)
	}

	return Bewit{ID: parts[0], Expiry: expiry, MAC: mac, Ext: parts[3]}, nil
}

// Extract finds the bewit parameter in a raw query string and returns its
// value together with the query without it. Other parameters keep their
// order and encoding.
//
// found is false when there is no bewit parameter. A repeated bewit
// parameter is reported as ErrMalformed.
func Extract(rawQuery string) (value, stripped string, found bool, err error) {
	if rawQuery == "" {
		return "", "", false, nil
	}

	params := strings.Split(rawQuery, "&")
	kept := params[:0:0]
	for _, p := range params {
		name, v, _ := strings.Cut(p, "=")
		if name != QueryParam {
			kept = append(kept, p)
			continue
		}
		if found {
			return "", "", false, fmt.Errorf("%w: repeated bewit parameter", ErrMalformed)
		}
		unescaped, uerr := url.QueryUnescape(v)
		if uerr != nil {
			return "", "", false, fmt.Errorf("%w: invalid escaping", ErrMalformed)
		}
		value, found = unescaped, true
	}

	return value, strings.Join(kept, "&"), found, nil
}

// Present reports whether a raw query string carries a bewit parameter.
func Present(rawQuery string) bool {
	_, _, found, err := Extract(rawQuery)
	return found || err != nil
}
