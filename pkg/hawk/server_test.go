package hawk

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/nonce"
)

const (
	vectorURL  = "http://example.com:8000/resource/1?b=1&a=2"
	vectorTime = 1353832234
	vectorGET  = `Hawk id="dh37fgj492je", ts="1353832234", nonce="j4h3g2", ext="some-app-ext-data", mac="6R4rV5iE+NPoym+WwjeHzjAGXUtLNIxmo1vpMofpLAE="`
	vectorPOST = `Hawk id="dh37fgj492je", ts="1353832234", nonce="j4h3g2", ext="some-app-ext-data", mac="aSe1DERmZuRl3pI36/9BdZmnErTw3sNzOOAUlfeKjVw=", hash="Yi9LfIIFRtBEPt74PVmbTF/xVAwPn7ub15ePICfgnuY="`
)

func TestNewServer_Errors(t *testing.T) {
	if _, err := NewServer(ServerOptions{}); err == nil {
		t.Fatal("NewServer() expected error for missing resolver")
	}
	if _, err := NewServer(ServerOptions{Resolver: credential.StaticResolver{}, Skew: -time.Second}); err == nil {
		t.Fatal("NewServer() expected error for negative skew")
	}
}

func TestServer_Vectors(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		header      string
	}{
		{"GET", http.MethodGet, "", "", vectorGET},
		{"POST with payload", http.MethodPost, "text/plain", "Thank you for flying Hawk", vectorPOST},
		{"POST content type params ignored", http.MethodPost, "Text/Plain; charset=utf-8", "Thank you for flying Hawk", vectorPOST},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, events := newTestServer(t, time.Unix(vectorTime, 0))
			req := newRequest(t, tt.method, vectorURL, tt.contentType, tt.body)
			req.SetHeader("Authorization", tt.header)

			res, err := srv.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("Authenticate() error: %v", err)
			}
			if !res.Authenticated {
				t.Fatalf("Authenticate() not authenticated: %+v", events.last(t))
			}
			if res.Channel != ChannelHeader || res.Credential.User != "steve" || res.Artifacts.Ext != "some-app-ext-data" {
				t.Errorf("unexpected result: %+v", res)
			}
		})
	}
}

func TestServer_PayloadTampered(t *testing.T) {
	srv, events := newTestServer(t, time.Unix(vectorTime, 0))
	req := newRequest(t, http.MethodPost, vectorURL, "text/plain", "Thank you for flying Hawk!")
	req.SetHeader("Authorization", vectorPOST)

	res, err := srv.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if res.Authenticated {
		t.Fatal("tampered body authenticated")
	}
	if got := events.last(t).Reason; got != ReasonBadHash {
		t.Errorf("reason = %q, want %q", got, ReasonBadHash)
	}
}

func TestServer_RequirePayloadHash(t *testing.T) {
	srv, events := newTestServer(t, time.Unix(vectorTime, 0), func(o *ServerOptions) { o.RequirePayloadHash = true })
	req := newRequest(t, http.MethodGet, vectorURL, "", "")
	req.SetHeader("Authorization", vectorGET)

	res, _ := srv.Authenticate(context.Background(), req)
	if res.Authenticated {
		t.Fatal("request without hash authenticated")
	}
	if got := events.last(t).Reason; got != ReasonMissingHash {
		t.Errorf("reason = %q, want %q", got, ReasonMissingHash)
	}
}

func TestServer_Replay(t *testing.T) {
	srv, events := newTestServer(t, time.Unix(vectorTime, 0))

	for i, want := range []bool{true, false} {
		req := newRequest(t, http.MethodGet, vectorURL, "", "")
		req.SetHeader("Authorization", vectorGET)
		res, err := srv.Authenticate(context.Background(), req)
		if err != nil {
			t.Fatalf("attempt %d: Authenticate() error: %v", i, err)
		}
		if res.Authenticated != want {
			t.Fatalf("attempt %d: Authenticated = %v, want %v", i, res.Authenticated, want)
		}
	}
	if got := events.last(t); got.Reason != ReasonReplay || got.ID != testCredential.ID {
		t.Errorf("last event = %+v, want replay for %s", got, testCredential.ID)
	}
}

func TestServer_RememberRace(t *testing.T) {
	guard := nonce.GuardFuncs{
		RememberFunc: func(context.Context, nonce.Entry) (bool, error) { return false, nil },
	}
	srv, events := newTestServer(t, time.Unix(vectorTime, 0), func(o *ServerOptions) { o.Guard = guard })
	req := newRequest(t, http.MethodGet, vectorURL, "", "")
	req.SetHeader("Authorization", vectorGET)

	res, err := srv.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if res.Authenticated {
		t.Fatal("losing insert authenticated")
	}
	if got := events.last(t).Reason; got != ReasonReplay {
		t.Errorf("reason = %q, want %q", got, ReasonReplay)
	}
}

func TestServer_SkewBoundary(t *testing.T) {
	now := time.Unix(1742000000, 0)

	tests := []struct {
		name      string
		offset    time.Duration
		challenge bool
	}{
		{"now", 0, false},
		{"exactly skew in the past", -60 * time.Second, false},
		{"exactly skew in the future", 60 * time.Second, false},
		{"one second too old", -61 * time.Second, true},
		{"one second too new", 61 * time.Second, true},
		{"far past", -time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, events := newTestServer(t, now.Add(900*time.Millisecond))
			req, _ := signedRequest(t, now.Add(tt.offset), http.MethodGet, "https://example.com/resource")

			res, err := srv.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("Authenticate() error: %v", err)
			}
			if res.Authenticated == tt.challenge {
				t.Fatalf("Authenticated = %v, event %+v", res.Authenticated, events.last(t))
			}
			if !tt.challenge {
				if res.Challenge != nil {
					t.Error("accepted request carries a challenge")
				}
				return
			}

			if res.Challenge == nil {
				t.Fatal("stale request has no challenge")
			}
			if got := events.last(t); got.Outcome != OutcomeChallenged || got.Reason != ReasonStale {
				t.Errorf("event = %+v, want challenged/stale", got)
			}
			if res.Challenge.Timestamp != now.Unix() {
				t.Errorf("challenge ts = %d, want %d", res.Challenge.Timestamp, now.Unix())
			}
			crypto, _ := testCredential.Cryptographer()
			if !crypto.IsValidTimestampMAC(res.Challenge.Timestamp, res.Challenge.TSM) {
				t.Error("challenge tsm does not verify")
			}
		})
	}
}

func TestServer_StaleNonceNotRecorded(t *testing.T) {
	now := time.Unix(1742000000, 0)
	guard, err := nonce.NewMemoryGuard(nonce.MemoryOptions{Now: clock(now)})
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := newTestServer(t, now, func(o *ServerOptions) { o.Guard = guard })

	req, _ := signedRequest(t, now.Add(-time.Hour), http.MethodGet, "https://example.com/resource")
	if res, _ := srv.Authenticate(context.Background(), req); res.Authenticated {
		t.Fatal("stale request authenticated")
	}
	if guard.Len() != 0 {
		t.Errorf("stale nonce recorded, guard size %d", guard.Len())
	}
}

type movingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movingClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestServer_ReplayWithinWindow(t *testing.T) {
	start := time.Unix(1742000000, 0)

	tests := []struct {
		name        string
		localOffset time.Duration
		clientAhead time.Duration
		replayAfter time.Duration
		stale       bool
	}{
		{"replay at skew", 0, 0, 60 * time.Second, false},
		{"replay just before stale", 0, 0, 60*time.Second + 999*time.Millisecond, false},
		{"replay once stale", 0, 0, 61 * time.Second, true},
		{"client ahead, replay after skew", 0, 60 * time.Second, 61 * time.Second, false},
		{"client ahead, replay at twice skew", 0, 60 * time.Second, 120 * time.Second, false},
		{"client ahead, replay once stale", 0, 60 * time.Second, 121 * time.Second, true},
		{"server behind, replay at twice skew", -30 * time.Second, 30 * time.Second, 120 * time.Second, false},
		{"server behind, replay once stale", -30 * time.Second, 30 * time.Second, 121 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &movingClock{now: start}
			srv, events := newTestServer(t, start, func(o *ServerOptions) {
				o.Now = clk.Now
				o.LocalOffset = tt.localOffset
			})
			req, _ := signedRequest(t, start.Add(tt.clientAhead), http.MethodGet, "https://example.com/resource")

			res, err := srv.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("first Authenticate() error: %v", err)
			}
			if !res.Authenticated {
				t.Fatalf("first attempt rejected: %+v", events.last(t))
			}

			clk.Set(start.Add(tt.replayAfter))
			res, err = srv.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("replay Authenticate() error: %v", err)
			}
			if res.Authenticated {
				t.Fatal("replayed request authenticated")
			}
			want := ReasonReplay
			if tt.stale {
				want = ReasonStale
			}
			if got := events.last(t).Reason; got != want {
				t.Errorf("replay reason = %q, want %q", got, want)
			}
		})
	}
}

func TestServer_FullGuardFailsHard(t *testing.T) {
	now := time.Unix(1742000000, 0)
	guard, err := nonce.NewMemoryGuard(nonce.MemoryOptions{Capacity: 1, Now: clock(now)})
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := newTestServer(t, now, func(o *ServerOptions) { o.Guard = guard })

	first, _ := signedRequest(t, now, http.MethodGet, "https://example.com/resource")
	if res, err := srv.Authenticate(context.Background(), first); err != nil || !res.Authenticated {
		t.Fatalf("first request: res=%+v err=%v", res, err)
	}

	second, _ := signedRequest(t, now, http.MethodGet, "https://example.com/resource")
	if _, err := srv.Authenticate(context.Background(), second); !errors.Is(err, nonce.ErrFull) {
		t.Fatalf("Authenticate() error = %v, want %v", err, nonce.ErrFull)
	}
}

func TestServer_LocalOffset(t *testing.T) {
	now := time.Unix(1742000000, 0)
	srv, _ := newTestServer(t, now, func(o *ServerOptions) { o.LocalOffset = 10 * time.Minute })

	req, _ := signedRequest(t, now.Add(10*time.Minute), http.MethodGet, "https://example.com/resource")
	res, err := srv.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if !res.Authenticated {
		t.Fatal("request within offset window rejected")
	}
}

func TestServer_Tampering(t *testing.T) {
	now := time.Unix(1742000000, 0)

	tests := []struct {
		name   string
		mutate func(r *http.Request, a *artifacts.Artifacts)
	}{
		{"method", func(r *http.Request, _ *artifacts.Artifacts) { r.Method = http.MethodDelete }},
		{"path", func(r *http.Request, _ *artifacts.Artifacts) { r.URL.Path = "/resourcE" }},
		{"query", func(r *http.Request, _ *artifacts.Artifacts) { r.URL.RawQuery = "a=1&b=3" }},
		{"host", func(r *http.Request, _ *artifacts.Artifacts) { r.Host = "example.org" }},
		{"port", func(r *http.Request, _ *artifacts.Artifacts) { r.Host = "example.com:444" }},
		{"timestamp", func(_ *http.Request, a *artifacts.Artifacts) { a.Timestamp++ }},
		{"nonce", func(_ *http.Request, a *artifacts.Artifacts) { a.Nonce += "x" }},
		{"ext", func(_ *http.Request, a *artifacts.Artifacts) { a.Ext = "injected" }},
		{"mac", func(_ *http.Request, a *artifacts.Artifacts) { a.MAC[0] ^= 0x01 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, events := newTestServer(t, now)
			req, a := signedRequest(t, now, http.MethodGet, "https://example.com/resource?a=1&b=2")
			tampered := a.Clone()
			tt.mutate(req.HTTPRequest(), tampered)
			req.SetHeader("Authorization", tampered.Header())

			res, err := srv.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("Authenticate() error: %v", err)
			}
			if res.Authenticated {
				t.Fatal("tampered request authenticated")
			}
			if got := events.last(t).Reason; got != ReasonBadMAC {
				t.Errorf("reason = %q, want %q", got, ReasonBadMAC)
			}
		})
	}
}

func TestServer_Rejections(t *testing.T) {
	now := time.Unix(1742000000, 0)

	unknown := func(r *base.Request) {
		a := &artifacts.Artifacts{ID: "nobody", Timestamp: now.Unix(), Nonce: "abc", MAC: []byte{1}}
		r.SetHeader("Authorization", a.Header())
	}

	tests := []struct {
		name    string
		url     string
		prepare func(r *base.Request)
		channel Channel
		reason  Reason
	}{
		{"no credentials", "https://example.com/r", func(*base.Request) {}, ChannelNone, ReasonMissing},
		{"other scheme", "https://example.com/r", func(r *base.Request) { r.SetHeader("Authorization", "Bearer abc") }, ChannelHeader, ReasonMalformed},
		{"smuggled parameter", "https://example.com/r", func(r *base.Request) {
			r.SetHeader("Authorization", `Hawk id="a", ts="1", nonce="n", mac="AQ==", x="1"`)
		}, ChannelHeader, ReasonMalformed},
		{"unknown id", "https://example.com/r", unknown, ChannelHeader, ReasonUnknownCredential},
		{"header and bewit", "https://example.com/r?bewit=abc", func(r *base.Request) {
			r.SetHeader("Authorization", vectorGET)
		}, ChannelNone, ReasonAmbiguous},
		{"bad bewit", "https://example.com/r?bewit=***", func(*base.Request) {}, ChannelBewit, ReasonMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, events := newTestServer(t, now)
			req := newRequest(t, http.MethodGet, tt.url, "", "")
			tt.prepare(req)

			res, err := srv.Authenticate(context.Background(), req)
			if err != nil {
				t.Fatalf("Authenticate() error: %v", err)
			}
			if res.Authenticated || res.Challenge != nil || res.Artifacts != nil || res.Credential.ID != "" {
				t.Errorf("rejection leaks detail: %+v", res)
			}
			got := events.last(t)
			if got.Channel != tt.channel || got.Reason != tt.reason || got.Outcome != OutcomeRejected {
				t.Errorf("event = %+v, want %s/%s", got, tt.channel, tt.reason)
			}
		})
	}
}

func TestServer_CallbackFailures(t *testing.T) {
	now := time.Unix(1742000000, 0)
	boom := errors.New("backend down")

	tests := []struct {
		name   string
		mutate func(*ServerOptions)
	}{
		{"resolver", func(o *ServerOptions) {
			o.Resolver = credential.ResolverFunc(func(context.Context, string) (credential.Credential, error) {
				return credential.Credential{}, boom
			})
		}},
		{"seen", func(o *ServerOptions) {
			o.Guard = nonce.GuardFuncs{SeenFunc: func(context.Context, nonce.Entry) (bool, error) { return false, boom }}
		}},
		{"remember", func(o *ServerOptions) {
			o.Guard = nonce.GuardFuncs{RememberFunc: func(context.Context, nonce.Entry) (bool, error) { return false, boom }}
		}},
		{"ext verifier", func(o *ServerOptions) {
			o.ExtVerifier = ExtVerifierFunc(func(context.Context, credential.Credential, string) (bool, error) {
				return false, boom
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, events := newTestServer(t, now, tt.mutate)
			req, _ := signedRequest(t, now, http.MethodGet, "https://example.com/r")

			res, err := srv.Authenticate(context.Background(), req)
			if !errors.Is(err, boom) {
				t.Fatalf("Authenticate() error = %v, want %v", err, boom)
			}
			if res != nil {
				t.Error("failed callback returned a result")
			}
			if got := events.last(t).Outcome; got != OutcomeError {
				t.Errorf("outcome = %q, want %q", got, OutcomeError)
			}
		})
	}
}

func TestServer_ExtVerifier(t *testing.T) {
	now := time.Unix(vectorTime, 0)
	var seen string
	srv, events := newTestServer(t, now, func(o *ServerOptions) {
		o.ExtVerifier = ExtVerifierFunc(func(_ context.Context, cred credential.Credential, ext string) (bool, error) {
			seen = cred.ID + "/" + ext
			return false, nil
		})
	})
	req := newRequest(t, http.MethodGet, vectorURL, "", "")
	req.SetHeader("Authorization", vectorGET)

	res, err := srv.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if res.Authenticated {
		t.Fatal("ext veto ignored")
	}
	if seen != "dh37fgj492je/some-app-ext-data" {
		t.Errorf("verifier saw %q", seen)
	}
	if got := events.last(t).Reason; got != ReasonExt {
		t.Errorf("reason = %q, want %q", got, ReasonExt)
	}
}

func TestServer_Bewit(t *testing.T) {
	now := time.Unix(1742000000, 0)
	client := newTestClient(t, now)
	b, err := client.CreateBewit(newRequest(t, http.MethodGet, "https://example.com/file?x=1", "", ""), time.Minute, "")
	if err != nil {
		t.Fatalf("CreateBewit() error: %v", err)
	}
	url := "https://example.com/file?x=1&bewit=" + b

	t.Run("accepted", func(t *testing.T) {
		srv, _ := newTestServer(t, now)
		req := newRequest(t, http.MethodGet, url, "", "")
		res, err := srv.Authenticate(context.Background(), req)
		if err != nil {
			t.Fatalf("Authenticate() error: %v", err)
		}
		if !res.Authenticated || res.Channel != ChannelBewit {
			t.Fatalf("result = %+v", res)
		}
		if q := req.URL().RawQuery; q != "x=1" {
			t.Errorf("query = %q, want bewit stripped", q)
		}

		resp := newResponse(http.StatusOK, "", "")
		if err := srv.CreateServerAuthorization(context.Background(), req, resp, nil); err != nil {
			t.Fatal(err)
		}
		if h := resp.Header("Server-Authorization"); h != "" {
			t.Errorf("bewit response signed: %q", h)
		}
	})

	t.Run("not replay tracked", func(t *testing.T) {
		srv, _ := newTestServer(t, now)
		for i := 0; i < 2; i++ {
			res, _ := srv.Authenticate(context.Background(), newRequest(t, http.MethodGet, url, "", ""))
			if !res.Authenticated {
				t.Fatalf("attempt %d rejected", i)
			}
		}
	})

	t.Run("expired", func(t *testing.T) {
		srv, events := newTestServer(t, now.Add(time.Minute))
		res, _ := srv.Authenticate(context.Background(), newRequest(t, http.MethodGet, url, "", ""))
		if res.Authenticated {
			t.Fatal("expired bewit accepted")
		}
		if got := events.last(t).Reason; got != ReasonExpired {
			t.Errorf("reason = %q, want %q", got, ReasonExpired)
		}
	})

	t.Run("non-GET", func(t *testing.T) {
		srv, events := newTestServer(t, now)
		res, _ := srv.Authenticate(context.Background(), newRequest(t, http.MethodPost, url, "", ""))
		if res.Authenticated {
			t.Fatal("POST bewit accepted")
		}
		if got := events.last(t).Reason; got != ReasonMethod {
			t.Errorf("reason = %q, want %q", got, ReasonMethod)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		srv, events := newTestServer(t, now, func(o *ServerOptions) { o.DisableBewit = true })
		res, _ := srv.Authenticate(context.Background(), newRequest(t, http.MethodGet, url, "", ""))
		if res.Authenticated {
			t.Fatal("bewit accepted while disabled")
		}
		if got := events.last(t).Reason; got != ReasonBewitDisabled {
			t.Errorf("reason = %q, want %q", got, ReasonBewitDisabled)
		}
	})
}

func TestServer_CreateServerAuthorization(t *testing.T) {
	now := time.Unix(vectorTime, 0)

	authenticated := func(t *testing.T, srv *Server) (*base.Request, *Result) {
		t.Helper()
		req := newRequest(t, http.MethodGet, vectorURL, "", "")
		req.SetHeader("Authorization", vectorGET)
		res, err := srv.Authenticate(context.Background(), req)
		if err != nil || !res.Authenticated {
			t.Fatalf("Authenticate() = %+v, %v", res, err)
		}
		return req, res
	}

	t.Run("signs success", func(t *testing.T) {
		srv, _ := newTestServer(t, now, func(o *ServerOptions) {
			o.ExtNormalizer = StaticExt("response-ext")
			o.HashResponse = func(base.ResponseMessage) bool { return true }
		})
		req, res := authenticated(t, srv)
		resp := newResponse(http.StatusOK, "text/plain", "Some reply")

		if err := srv.CreateServerAuthorization(context.Background(), req, resp, nil); err != nil {
			t.Fatalf("CreateServerAuthorization() error: %v", err)
		}
		sa, err := artifacts.ParseServerAuthorization(resp.Header("Server-Authorization"))
		if err != nil {
			t.Fatalf("ParseServerAuthorization() error: %v", err)
		}
		if sa.Ext != "response-ext" || len(sa.Hash) == 0 {
			t.Errorf("Server-Authorization = %+v", sa)
		}

		client := newTestClient(t, now, func(o *ClientOptions) { o.RequireResponseHash = true })
		ok, err := client.Authenticate(context.Background(), req, resp, res.Artifacts)
		if err != nil || !ok {
			t.Errorf("client.Authenticate() = %v, %v", ok, err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		srv, _ := newTestServer(t, now, func(o *ServerOptions) { o.DisableServerAuthorization = true })
		req, res := authenticated(t, srv)
		resp := newResponse(http.StatusOK, "", "")
		if err := srv.CreateServerAuthorization(context.Background(), req, resp, res); err != nil {
			t.Fatal(err)
		}
		if h := resp.Header("Server-Authorization"); h != "" {
			t.Errorf("Server-Authorization = %q, want none", h)
		}
	})

	t.Run("bad response ext", func(t *testing.T) {
		srv, _ := newTestServer(t, now, func(o *ServerOptions) { o.ExtNormalizer = StaticExt(`say "hi"`) })
		req, res := authenticated(t, srv)
		err := srv.CreateServerAuthorization(context.Background(), req, newResponse(http.StatusOK, "", ""), res)
		if !errors.Is(err, artifacts.ErrInvalidHeader) {
			t.Errorf("error = %v, want ErrInvalidHeader", err)
		}
	})

	t.Run("401 without challenge", func(t *testing.T) {
		srv, _ := newTestServer(t, now)
		req := newRequest(t, http.MethodGet, vectorURL, "", "")
		_, _ = srv.Authenticate(context.Background(), req)
		resp := newResponse(http.StatusUnauthorized, "", "")
		if err := srv.CreateServerAuthorization(context.Background(), req, resp, nil); err != nil {
			t.Fatal(err)
		}
		if h := resp.Header("WWW-Authenticate"); h != "Hawk" {
			t.Errorf("WWW-Authenticate = %q, want Hawk", h)
		}
	})

	t.Run("401 with challenge", func(t *testing.T) {
		srv, _ := newTestServer(t, now.Add(time.Hour))
		req := newRequest(t, http.MethodGet, vectorURL, "", "")
		req.SetHeader("Authorization", vectorGET)
		res, _ := srv.Authenticate(context.Background(), req)
		if res.Challenge == nil {
			t.Fatal("no challenge for stale request")
		}

		resp := newResponse(http.StatusUnauthorized, "", "")
		if err := srv.CreateServerAuthorization(context.Background(), req, resp, nil); err != nil {
			t.Fatal(err)
		}
		wantTSM := base64.StdEncoding.EncodeToString(res.Challenge.TSM)
		want := `Hawk ts="1353835834", tsm="` + wantTSM + `"`
		if h := resp.Header("WWW-Authenticate"); h != want {
			t.Errorf("WWW-Authenticate = %q, want %q", h, want)
		}
	})
}

func TestServer_EndToEndScenario(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	cred := credential.Credential{ID: "dh37fgj492je", Key: key, Algorithm: testCredential.Algorithm}
	resolver, err := credential.NewStaticResolver(cred)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(ServerOptions{
		Resolver: resolver,
		Now:      clock(time.Unix(1742000000+30, 0)),
		Logger:   quietLogger,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	crypto, _ := cred.Cryptographer()
	req := newRequest(t, http.MethodGet, "https://api.example.com/resource?a=1&b=2", "", "")
	target, err := base.TargetOf(req, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := &artifacts.Artifacts{ID: cred.ID, Timestamp: 1742000000, Nonce: "3hOHpR"}
	if err := crypto.Sign(base.KindHeader, a, target, nil); err != nil {
		t.Fatal(err)
	}
	header := a.Header()
	req.SetHeader("Authorization", header)

	res, err := srv.Authenticate(context.Background(), req)
	if err != nil || !res.Authenticated {
		t.Fatalf("Authenticate() = %+v, %v", res, err)
	}
	resp := newResponse(http.StatusOK, "", "")
	if err := srv.CreateServerAuthorization(context.Background(), req, resp, res); err != nil {
		t.Fatal(err)
	}
	if resp.Header("Server-Authorization") == "" {
		t.Error("no Server-Authorization on success")
	}

	replay := newRequest(t, http.MethodGet, "https://api.example.com/resource?a=1&b=2", "", "")
	replay.SetHeader("Authorization", header)
	res, err = srv.Authenticate(context.Background(), replay)
	if err != nil {
		t.Fatal(err)
	}
	if res.Authenticated {
		t.Fatal("replayed header authenticated")
	}
}
