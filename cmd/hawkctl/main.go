// Command hawkctl sends Hawk-signed requests and mints bewits.
//
//	hawkctl request [-X METHOD] [-d BODY] [-H 'Name: value'] URL
//	hawkctl bewit [-ttl 5m] [-ext data] URL
//
// The credential comes from -id, -key and -alg, or from HAWK_ID, HAWK_KEY
// and HAWK_ALGORITHM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/hawk"
	"github.com/forcebit/hawk-go/pkg/signing"
)

const usage = `usage: hawkctl <command> [flags] URL

commands:
  request   send a signed request and verify the response
  bewit     print URL with a bewit appended
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "request":
		err = runRequest(ctx, args[1:], stdout, stderr)
	case "bewit":
		err = runBewit(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "hawkctl: unknown command %q\n%s", args[0], usage)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "hawkctl: %v\n", err)
		return 1
	}
	return 0
}

type credentialFlags struct {
	id, key, alg string
	offset       time.Duration
	verbose      bool
}

func (c *credentialFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.id, "id", os.Getenv("HAWK_ID"), "credential id")
	fs.StringVar(&c.key, "key", os.Getenv("HAWK_KEY"), "credential key")
	fs.StringVar(&c.alg, "alg", envOr("HAWK_ALGORITHM", "sha256"), "MAC algorithm")
	fs.DurationVar(&c.offset, "offset", 0, "local clock offset")
	fs.BoolVar(&c.verbose, "v", false, "log protocol details to stderr")
}

func (c *credentialFlags) client(stderr io.Writer, mutate func(*hawk.ClientOptions)) (*hawk.Client, error) {
	alg, err := signing.ParseAlgorithm(c.alg)
	if err != nil {
		return nil, err
	}
	cred := credential.Credential{ID: c.id, Key: []byte(c.key), Algorithm: alg}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	opts := hawk.ClientOptions{
		Credential:  cred,
		LocalOffset: c.offset,
		Logger:      slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return hawk.NewClient(opts)
}

type headerFlags []string

func (h *headerFlags) String() string     { return strings.Join(*h, ", ") }
func (h *headerFlags) Set(v string) error { *h = append(*h, v); return nil }

func runRequest(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		creds       credentialFlags
		headers     headerFlags
		method      = fs.String("X", "", "HTTP method (default GET, or POST with -d)")
		data        = fs.String("d", "", "request body")
		contentType = fs.String("content-type", "application/json", "Content-Type sent with -d")
		hashPayload = fs.Bool("hash", true, "include the payload hash")
		requireHash = fs.Bool("require-response-hash", false, "fail unless the response carries a payload hash")
		ext         = fs.String("ext", "", "ext value sent with the request")
		include     = fs.Bool("i", false, "print the response status and headers")
		timeout     = fs.Duration("timeout", 30*time.Second, "request timeout")
	)
	creds.register(fs)
	fs.Var(&headers, "H", "extra request header 'Name: value' (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("request needs exactly one URL")
	}

	client, err := creds.client(stderr, func(o *hawk.ClientOptions) {
		o.HashPayload = func(base.RequestMessage) bool { return *hashPayload }
		o.RequireResponseHash = *requireHash
		if *ext != "" {
			o.ExtNormalizer = hawk.StaticExt(*ext)
		}
	})
	if err != nil {
		return err
	}

	m := *method
	if m == "" {
		m = http.MethodGet
		if *data != "" {
			m = http.MethodPost
		}
	}
	var body io.Reader
	if *data != "" {
		body = strings.NewReader(*data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(m), fs.Arg(0), body)
	if err != nil {
		return err
	}
	if *data != "" {
		req.Header.Set("Content-Type", *contentType)
	}
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("malformed header %q", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	httpClient := &http.Client{Transport: &hawk.Transport{Client: client}, Timeout: *timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if *include {
		fmt.Fprintf(stdout, "%s %s\n", resp.Proto, resp.Status)
		if err := resp.Header.Write(stdout); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
	}
	if _, err := io.Copy(stdout, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server answered %s", resp.Status)
	}
	return nil
}

func runBewit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("bewit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var creds credentialFlags
	ttl := fs.Duration("ttl", 5*time.Minute, "bewit lifetime")
	ext := fs.String("ext", "", "ext value embedded in the bewit")
	creds.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("bewit needs exactly one URL")
	}

	client, err := creds.client(stderr, nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, fs.Arg(0), nil)
	if err != nil {
		return err
	}
	b, err := client.CreateBewit(base.WrapRequest(req), *ttl, *ext)
	if err != nil {
		return err
	}

	sep := "?"
	if req.URL.RawQuery != "" {
		sep = "&"
	}
	fmt.Fprintln(stdout, fs.Arg(0)+sep+"bewit="+b)
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
