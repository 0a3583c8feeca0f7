package base

import (
	"errors"
	"net"
	"strings"
)

// ErrNoHost is returned when neither the request nor its forwarding headers
// name a host.
var ErrNoHost = errors.New("request has no host")

// HostResolver determines the host and port a request was addressed to.
// Resolution happens outside canonicalization so that reverse proxies can
// supply the externally visible authority.
type HostResolver interface {
	ResolveHost(req RequestMessage) (host, port string, err error)
}

// HostResolverFunc adapts a function to HostResolver.
type HostResolverFunc func(req RequestMessage) (host, port string, err error)

// ResolveHost calls f(req).
func (f HostResolverFunc) ResolveHost(req RequestMessage) (string, string, error) {
	return f(req)
}

// DefaultHostResolver uses the request's own host, with the port taken from
// the host or defaulted from the scheme.
type DefaultHostResolver struct{}

func (DefaultHostResolver) ResolveHost(req RequestMessage) (string, string, error) {
	host, port := SplitHostPort(req.Host(), req.Scheme())
	if host == "" {
		return "", "", ErrNoHost
	}
	return host, port, nil
}

// ForwardedHostResolver prefers X-Forwarded-Host, X-Forwarded-Port and
// X-Forwarded-Proto, falling back to DefaultHostResolver. Only use it behind
// a proxy that overwrites these headers.
type ForwardedHostResolver struct {
	// HostHeader and PortHeader override the header names.
	HostHeader  string
	PortHeader  string
	ProtoHeader string
}

func (r ForwardedHostResolver) ResolveHost(req RequestMessage) (string, string, error) {
	hostHeader := r.HostHeader
	if hostHeader == "" {
		hostHeader = "X-Forwarded-Host"
	}
	portHeader := r.PortHeader
	if portHeader == "" {
		portHeader = "X-Forwarded-Port"
	}
	protoHeader := r.ProtoHeader
	if protoHeader == "" {
		protoHeader = "X-Forwarded-Proto"
	}

	fwdHost := firstListValue(req.Header(hostHeader))
	if fwdHost == "" {
		return DefaultHostResolver{}.ResolveHost(req)
	}

	scheme := firstListValue(req.Header(protoHeader))
	if scheme == "" {
		scheme = req.Scheme()
	}
	host, port := SplitHostPort(fwdHost, scheme)
	if p := firstListValue(req.Header(portHeader)); p != "" {
		port = p
	}
	if host == "" {
		return "", "", ErrNoHost
	}
	return host, port, nil
}

// SplitHostPort splits an authority into host and port. A missing port is
// defaulted from the scheme: 443 for https, 80 otherwise. IPv6 brackets are
// kept on the host.
func SplitHostPort(authority, scheme string) (host, port string) {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return "", ""
	}

	if h, p, err := net.SplitHostPort(authority); err == nil {
		if strings.Contains(h, ":") {
			h = "[" + h + "]"
		}
		host, port = h, p
	} else {
		host = authority
	}

	if port == "" {
		port = DefaultPort(scheme)
	}
	return host, port
}

// DefaultPort returns the well-known port of scheme.
func DefaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return "443"
	}
	return "80"
}

func firstListValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
