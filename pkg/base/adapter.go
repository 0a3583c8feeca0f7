// Package base builds the canonical strings Hawk signs and hashes, and
// adapts net/http messages to the RequestMessage and ResponseMessage views
// the rest of the module works on.
package base

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// MaxBodyBytes is the largest body the adapters will buffer for payload
// hashing.
const MaxBodyBytes = 10 << 20

// Request adapts *http.Request to the RequestMessage interface.
type Request struct {
	req *http.Request

	mu     sync.Mutex
	body   []byte
	read   bool
	values map[any]any
}

// WrapRequest adapts a standard *http.Request to the RequestMessage interface.
//
// The same wrapper must be used for the authenticate and respond phases of
// one exchange so that values set during authentication are visible when
// the response is signed.
//
// Example:
//
//	req, _ := http.NewRequest("GET", "https://example.com/resource?a=1", nil)
//	msg := base.WrapRequest(req)
//	artifacts, err := client.Sign(ctx, msg)
func WrapRequest(req *http.Request) *Request {
	return &Request{req: req}
}

// HTTPRequest returns the wrapped request.
func (r *Request) HTTPRequest() *http.Request {
	return r.req
}

func (r *Request) Method() string {
	return r.req.Method
}

func (r *Request) URL() *url.URL {
	return r.req.URL
}

func (r *Request) Scheme() string {
	if r.req.URL != nil && r.req.URL.Scheme != "" {
		return r.req.URL.Scheme
	}
	if r.req.TLS != nil {
		return "https"
	}
	return "http"
}

func (r *Request) Host() string {
	if r.req.Host != "" {
		return r.req.Host
	}
	if r.req.URL != nil {
		return r.req.URL.Host
	}
	return ""
}

func (r *Request) Header(name string) string {
	return r.req.Header.Get(name)
}

func (r *Request) SetHeader(name, value string) {
	if r.req.Header == nil {
		r.req.Header = make(http.Header)
	}
	r.req.Header.Set(name, value)
}

func (r *Request) AddHeader(name, value string) {
	if r.req.Header == nil {
		r.req.Header = make(http.Header)
	}
	r.req.Header.Add(name, value)
}

func (r *Request) ContentType() string {
	return r.req.Header.Get("Content-Type")
}

// Body reads the request body once, caches it, and puts an equivalent
// reader back on the request for downstream handlers.
func (r *Request) Body() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.read {
		return string(r.body), nil
	}

	var rc io.ReadCloser
	switch {
	case r.req.Body != nil && r.req.Body != http.NoBody:
		rc = r.req.Body
	case r.req.GetBody != nil:
		var err error
		rc, err = r.req.GetBody()
		if err != nil {
			return "", fmt.Errorf("failed to obtain request body: %w", err)
		}
	}

	if rc != nil {
		data, err := readLimited(rc)
		_ = rc.Close()
		if err != nil {
			return "", err
		}
		r.body = data
		r.req.Body = io.NopCloser(bytes.NewReader(data))
		r.req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	r.read = true
	return string(r.body), nil
}

func (r *Request) SetRawQuery(rawQuery string) {
	if r.req.URL == nil {
		return
	}
	r.req.URL.RawQuery = rawQuery
	if r.req.RequestURI != "" {
		uri := r.req.URL.EscapedPath()
		if rawQuery != "" {
			uri += "?" + rawQuery
		}
		r.req.RequestURI = uri
	}
}

func (r *Request) Value(key any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key]
}

func (r *Request) SetValue(key, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
}

// Response adapts *http.Response to the ResponseMessage interface.
type Response struct {
	resp *http.Response

	mu   sync.Mutex
	body []byte
	read bool
}

// WrapResponse adapts a standard *http.Response to the ResponseMessage
// interface. Reading the body through the wrapper leaves resp.Body readable.
func WrapResponse(resp *http.Response) *Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return &Response{resp: resp}
}

func (r *Response) StatusCode() int {
	return r.resp.StatusCode
}

func (r *Response) Header(name string) string {
	return r.resp.Header.Get(name)
}

func (r *Response) SetHeader(name, value string) {
	r.resp.Header.Set(name, value)
}

func (r *Response) ContentType() string {
	return r.resp.Header.Get("Content-Type")
}

func (r *Response) Body() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.read {
		return string(r.body), nil
	}
	if r.resp.Body != nil && r.resp.Body != http.NoBody {
		data, err := readLimited(r.resp.Body)
		_ = r.resp.Body.Close()
		if err != nil {
			return "", err
		}
		r.body = data
		r.resp.Body = io.NopCloser(bytes.NewReader(data))
	}
	r.read = true
	return string(r.body), nil
}

// ResponseRecorder buffers a handler's response so that it can be signed
// before anything reaches the client. It implements http.ResponseWriter;
// Message returns the ResponseMessage view used for signing.
type ResponseRecorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

// NewResponseRecorder returns an empty recorder with status 200.
func NewResponseRecorder() *ResponseRecorder {
	return &ResponseRecorder{header: make(http.Header), status: http.StatusOK}
}

// WriteTo copies the buffered response to w.
func (rec *ResponseRecorder) WriteTo(w http.ResponseWriter) error {
	dst := w.Header()
	for k, v := range rec.header {
		dst[k] = append([]string(nil), v...)
	}
	w.WriteHeader(rec.status)
	if _, err := w.Write(rec.body.Bytes()); err != nil {
		return fmt.Errorf("failed to write buffered response: %w", err)
	}
	return nil
}

func (rec *ResponseRecorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.status = status
}

func (rec *ResponseRecorder) Write(p []byte) (int, error) {
	rec.WriteHeader(http.StatusOK)
	return rec.body.Write(p)
}

func (rec *ResponseRecorder) Header() http.Header {
	return rec.header
}

// Message returns the ResponseMessage view of the buffered response.
func (rec *ResponseRecorder) Message() ResponseMessage {
	return recorderView{rec}
}

type recorderView struct {
	rec *ResponseRecorder
}

func (v recorderView) StatusCode() int             { return v.rec.status }
func (v recorderView) Header(name string) string   { return v.rec.header.Get(name) }
func (v recorderView) SetHeader(name, value string) { v.rec.header.Set(name, value) }
func (v recorderView) ContentType() string         { return v.rec.header.Get("Content-Type") }
func (v recorderView) Body() (string, error)       { return v.rec.body.String(), nil }

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > MaxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", MaxBodyBytes)
	}
	return data, nil
}
