package hawk

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/signing"
)

// Published Hawk example credential.
var testCredential = credential.Credential{
	ID:        "dh37fgj492je",
	Key:       []byte("werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn"),
	Algorithm: signing.HMACSHA256,
	User:      "steve",
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Observe(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) last(t *testing.T) Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no events observed")
	}
	return r.events[len(r.events)-1]
}

func newTestServer(t *testing.T, now time.Time, mutate ...func(*ServerOptions)) (*Server, *eventRecorder) {
	t.Helper()
	resolver, err := credential.NewStaticResolver(testCredential)
	if err != nil {
		t.Fatalf("NewStaticResolver() error: %v", err)
	}
	events := &eventRecorder{}
	opts := ServerOptions{
		Resolver: resolver,
		Now:      clock(now),
		Logger:   quietLogger,
		Observer: events,
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv, events
}

func newTestClient(t *testing.T, now time.Time, mutate ...func(*ClientOptions)) *Client {
	t.Helper()
	opts := ClientOptions{
		Credential: testCredential,
		Now:        clock(now),
		Logger:     quietLogger,
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c
}

func newRequest(t *testing.T, method, url, contentType, body string) *base.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return base.WrapRequest(req)
}

// signedRequest returns a request signed by a client whose clock reads at.
func signedRequest(t *testing.T, at time.Time, method, url string) (*base.Request, *artifacts.Artifacts) {
	t.Helper()
	req := newRequest(t, method, url, "", "")
	a, err := newTestClient(t, at).Sign(context.Background(), req)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return req, a
}

type testResponse struct {
	status int
	header http.Header
	body   string
}

func newResponse(status int, contentType, body string) *testResponse {
	r := &testResponse{status: status, header: make(http.Header), body: body}
	if contentType != "" {
		r.header.Set("Content-Type", contentType)
	}
	return r
}

func (r *testResponse) StatusCode() int              { return r.status }
func (r *testResponse) Header(name string) string    { return r.header.Get(name) }
func (r *testResponse) SetHeader(name, value string) { r.header.Set(name, value) }
func (r *testResponse) ContentType() string          { return r.header.Get("Content-Type") }
func (r *testResponse) Body() (string, error)        { return r.body, nil }
