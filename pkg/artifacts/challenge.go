package artifacts

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/forcebit/hawk-go/pkg/base"
)

// Challenge is the WWW-Authenticate parameter set sent with a 401. When the
// request was rejected for a stale timestamp, Timestamp and TSM carry the
// server's clock and its MAC so the client can correct its offset.
type Challenge struct {
	Timestamp int64
	TSM       []byte
}

// HasTimestamp reports whether the challenge carries a signed server time.
func (c Challenge) HasTimestamp() bool {
	return len(c.TSM) > 0
}

// String serializes the challenge. An empty challenge is the bare scheme.
func (c Challenge) String() string {
	if !c.HasTimestamp() {
		return base.Scheme
	}

	var sb strings.Builder
	sb.WriteString(base.Scheme)
	sb.WriteByte(' ')
	writeParam(&sb, KeyTS, strconv.FormatInt(c.Timestamp, 10))
	writeParam(&sb, KeyTSM, base64.StdEncoding.EncodeToString(c.TSM))
	return strings.TrimSuffix(sb.String(), ", ")
}

// ParseChallenge parses a WWW-Authenticate header value. Only ts and tsm
// are allowed, and they must appear together.
func ParseChallenge(header string) (Challenge, error) {
	ps, err := parseHeader(header, DefaultLimits())
	if err != nil {
		return Challenge{}, err
	}

	for key := range ps {
		if key != KeyTS && key != KeyTSM {
			return Challenge{}, fmt.Errorf("%w: %q not allowed in challenge", ErrInvalidHeader, key)
		}
	}
	if ps.has(KeyTS) != ps.has(KeyTSM) {
		return Challenge{}, fmt.Errorf("%w: ts and tsm must appear together", ErrInvalidHeader)
	}
	if !ps.has(KeyTS) {
		return Challenge{}, nil
	}

	a, err := fromParams(ps)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Timestamp: a.Timestamp, TSM: a.TSM}, nil
}
