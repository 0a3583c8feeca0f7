package hawk

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
)

// ErrResponseNotAuthenticated is returned by Transport when a response
// fails Server-Authorization validation.
var ErrResponseNotAuthenticated = errors.New("hawk: response not authenticated")

// Transport is an http.RoundTripper that signs every request with Client.
//
// A 401 carrying a valid timestamp challenge corrects the client's clock
// and the request is sent once more. Requests with a body are retried only
// when GetBody is set. Other 401s are returned as-is; any other response
// must pass Client.Authenticate or the round trip fails with
// ErrResponseNotAuthenticated.
type Transport struct {
	Client *Client

	// Base performs the round trips. Default: http.DefaultTransport.
	Base http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Client == nil {
		return nil, fmt.Errorf("hawk transport has no client")
	}

	msg, a, resp, err := t.send(req, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if !t.Client.HandleChallenge(base.WrapResponse(resp)) || !replayable(req) {
			return resp, nil
		}
		drain(resp)
		msg, a, resp, err = t.send(req, true)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return resp, nil
		}
	}

	ok, err := t.Client.Authenticate(req.Context(), msg, base.WrapResponse(resp), a)
	if err != nil || !ok {
		drain(resp)
		if err == nil {
			err = ErrResponseNotAuthenticated
		}
		return nil, err
	}
	return resp, nil
}

// send signs a clone of req and performs the round trip. The original
// request is never modified.
func (t *Transport) send(req *http.Request, retry bool) (*base.Request, *artifacts.Artifacts, *http.Response, error) {
	out := req.Clone(req.Context())
	if retry && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}

	msg := base.WrapRequest(out)
	a, err := t.Client.Sign(req.Context(), msg)
	if err != nil {
		return nil, nil, nil, err
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, a, resp, nil
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, base.MaxBodyBytes))
	_ = resp.Body.Close()
}
