package hawk

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/credential"
)

type contextKey string

const contextKeyResult contextKey = "hawk.result"

// Middleware protects next with srv.
//
// Unauthenticated requests get a 401 with WWW-Authenticate. Authenticated
// requests reach next with their Result in the context; next's response
// is buffered so that Server-Authorization can cover its body before
// anything is sent.
func Middleware(srv *Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg := base.WrapRequest(r)
		res, err := srv.Authenticate(r.Context(), msg)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		rec := base.NewResponseRecorder()
		if res.Authenticated {
			ctx := context.WithValue(r.Context(), contextKeyResult, res)
			next.ServeHTTP(rec, r.WithContext(ctx))
		} else {
			http.Error(rec, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}

		if err := srv.CreateServerAuthorization(r.Context(), msg, rec.Message(), res); err != nil {
			srv.logger.ErrorContext(r.Context(), "hawk response signing failed", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if err := rec.WriteTo(w); err != nil {
			srv.logger.DebugContext(r.Context(), "hawk response write failed", slog.Any("error", err))
		}
	})
}

// ResultFromContext returns the Result stored by Middleware.
func ResultFromContext(ctx context.Context) (*Result, bool) {
	res, ok := ctx.Value(contextKeyResult).(*Result)
	return res, ok
}

// CredentialFromContext returns the credential of the authenticated
// request.
func CredentialFromContext(ctx context.Context) (credential.Credential, bool) {
	res, ok := ResultFromContext(ctx)
	if !ok {
		return credential.Credential{}, false
	}
	return res.Credential, true
}
