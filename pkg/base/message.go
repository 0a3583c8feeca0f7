package base

import (
	"net/url"
)

// RequestMessage is the view of an HTTP request that Hawk signing and
// verification need. The hosting framework supplies it; WrapRequest adapts
// a standard *http.Request.
type RequestMessage interface {
	// Method returns the request method as received.
	Method() string

	// URL returns the request target. Only Path, RawPath and RawQuery are
	// read during canonicalization.
	URL() *url.URL

	// Scheme returns "http" or "https".
	Scheme() string

	// Host returns the authority the request was addressed to, with an
	// optional ":port" suffix.
	Host() string

	// Header returns the first value of the named header, or "".
	// Lookup is case-insensitive.
	Header(name string) string

	// SetHeader replaces the named header.
	SetHeader(name, value string)

	// AddHeader appends a value to the named header.
	AddHeader(name, value string)

	// ContentType returns the Content-Type header value.
	ContentType() string

	// Body returns the request body. Implementations must leave the body
	// readable for the next handler.
	Body() (string, error)

	// SetRawQuery rewrites the query string. Used to strip the bewit
	// parameter before re-canonicalizing.
	SetRawQuery(rawQuery string)

	// Value and SetValue give access to a request-scoped slot used to hand
	// state from the authenticate phase to the respond phase.
	Value(key any) any
	SetValue(key, value any)
}

// ResponseMessage is the view of an HTTP response that Hawk response signing
// and validation need.
type ResponseMessage interface {
	// StatusCode returns the HTTP status code.
	StatusCode() int

	// Header returns the first value of the named header, or "".
	Header(name string) string

	// SetHeader replaces the named header.
	SetHeader(name, value string)

	// ContentType returns the Content-Type header value.
	ContentType() string

	// Body returns the response body without consuming it.
	Body() (string, error)
}
