// Package hawk provides the high-level Hawk API: a Server that authenticates
// requests and counter-signs responses, a Client that signs requests and
// validates responses, and net/http glue for both sides.
//
// It wraps the artifacts codec, canonicalizer, cryptographer, bewit and
// nonce packages into an authenticate/respond flow:
//
//	srv, _ := hawk.NewServer(hawk.ServerOptions{Resolver: creds})
//	http.Handle("/", hawk.Middleware(srv, app))
//
//	cli, _ := hawk.NewClient(hawk.ClientOptions{Credential: cred})
//	httpClient := &http.Client{Transport: &hawk.Transport{Client: cli}}
//
// Every failure of a request to authenticate surfaces to the caller as the
// same unauthenticated Result. The reason is reported only to the Observer.
package hawk
