package base

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Scheme is the authentication scheme token used in headers and preambles.
const Scheme = "Hawk"

// Version is the protocol version embedded in every preamble.
const Version = "1"

// Kind selects the preamble of a request-form canonical string.
type Kind string

// Request-form kinds.
const (
	KindHeader   Kind = "header"
	KindBewit    Kind = "bewit"
	KindResponse Kind = "response"
)

// Valid reports whether k is one of the request-form kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHeader, KindBewit, KindResponse:
		return true
	}
	return false
}

const (
	preambleRoot = "hawk." + Version + "."

	payloadPreamble   = preambleRoot + "payload\n"
	timestampPreamble = preambleRoot + "ts\n"

	// PayloadSuffix terminates the payload form after the body.
	PayloadSuffix = "\n"
)

// RequestFields are the inputs of a request-form canonical string.
//
// Path is the raw (still percent-encoded) request path; NormalizedRequest
// decodes it. Query is appended verbatim. PayloadHash is already base64
// encoded and may be empty.
type RequestFields struct {
	Timestamp   int64
	Nonce       string
	Method      string
	Path        string
	Query       string
	Host        string
	Port        string
	PayloadHash string
	Ext         string
}

// NormalizedRequest builds the request-form canonical string.
//
// Layout, one field per line, every line terminated by LF:
//
//	hawk.1.<kind>
//	<ts>
//	<nonce>
//	<METHOD>
//	<decoded path>[?<query>]
//	<host, lower-cased>
//	<port>
//	<payload hash or empty>
//	<ext>
//
// The function is pure: identical fields always yield identical output.
func NormalizedRequest(kind Kind, f RequestFields) string {
	ts := strconv.FormatInt(f.Timestamp, 10)
	resource := DecodePath(f.Path)
	if f.Query != "" {
		resource += "?" + f.Query
	}

	var sb strings.Builder
	sb.Grow(len(preambleRoot) + len(kind) + len(ts) + len(f.Nonce) + len(f.Method) +
		len(resource) + len(f.Host) + len(f.Port) + len(f.PayloadHash) + len(f.Ext) + 9)

	writeLine(&sb, preambleRoot+string(kind))
	writeLine(&sb, ts)
	writeLine(&sb, f.Nonce)
	writeLine(&sb, strings.ToUpper(f.Method))
	writeLine(&sb, resource)
	writeLine(&sb, strings.ToLower(f.Host))
	writeLine(&sb, f.Port)
	writeLine(&sb, f.PayloadHash)
	writeLine(&sb, f.Ext)

	return sb.String()
}

// NormalizedPayload builds the payload-form canonical string.
func NormalizedPayload(contentType, body string) string {
	return PayloadPrefix(contentType) + body + PayloadSuffix
}

// PayloadPrefix returns everything in the payload form that precedes the
// body, for callers that stream the body into a hash.
func PayloadPrefix(contentType string) string {
	return payloadPreamble + NormalizeContentType(contentType) + "\n"
}

// NormalizedTimestamp builds the timestamp-form canonical string signed into
// the tsm challenge parameter.
func NormalizedTimestamp(ts int64) string {
	return timestampPreamble + strconv.FormatInt(ts, 10) + "\n"
}

// NormalizeContentType lower-cases a media type and strips its parameters:
// "Text/Plain; charset=UTF-8" becomes "text/plain".
func NormalizeContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// DecodePath percent-decodes a request path. A literal '+' stays '+'.
// Paths with invalid escapes are returned unchanged.
func DecodePath(path string) string {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return path
	}
	return decoded
}

// UnixSeconds returns t shifted by offset, floored to whole seconds.
func UnixSeconds(t time.Time, offset time.Duration) int64 {
	return t.Add(offset).Unix()
}

// RequestTarget returns the raw path and query of u, defaulting the path
// to "/".
func RequestTarget(u *url.URL) (path, query string) {
	if u == nil {
		return "/", ""
	}
	path = u.EscapedPath()
	if path == "" {
		if u.Opaque != "" {
			path = u.Opaque
		} else {
			path = "/"
		}
	}
	return path, u.RawQuery
}

func writeLine(sb *strings.Builder, s string) {
	sb.WriteString(s)
	sb.WriteByte('\n')
}

// Target is the part of a request a MAC covers besides the artifacts.
type Target struct {
	Method string
	Path   string // raw, percent-encoded
	Query  string
	Host   string
	Port   string
}

// TargetOf extracts the signed target of req. Host and port come from
// hosts, or DefaultHostResolver when nil.
func TargetOf(req RequestMessage, hosts HostResolver) (Target, error) {
	if hosts == nil {
		hosts = DefaultHostResolver{}
	}
	host, port, err := hosts.ResolveHost(req)
	if err != nil {
		return Target{}, err
	}
	path, query := RequestTarget(req.URL())
	return Target{
		Method: req.Method(),
		Path:   path,
		Query:  query,
		Host:   host,
		Port:   port,
	}, nil
}

// Fields combines the target with per-exchange values.
func (t Target) Fields(ts int64, nonce, payloadHash, ext string) RequestFields {
	return RequestFields{
		Timestamp:   ts,
		Nonce:       nonce,
		Method:      t.Method,
		Path:        t.Path,
		Query:       t.Query,
		Host:        t.Host,
		Port:        t.Port,
		PayloadHash: payloadHash,
		Ext:         ext,
	}
}
