package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/config"
	"github.com/forcebit/hawk-go/pkg/hawk"
)

// app owns the Hawk server, its backends and the HTTP router.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	hawk     *hawk.Server
	handler  http.Handler
	closers  []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	resolver, closeResolver, err := openResolver(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeResolver)

	guard, closeGuard, err := openGuard(ctx, cfg.Nonce, cfg.Hawk.Skew, a.registry, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeGuard)

	opts := hawk.ServerOptions{
		Resolver:   resolver,
		Guard:      guard,
		Logger:     logger,
		Registerer: a.registry,
	}
	cfg.Hawk.ServerOptions(&opts)
	srv, err := hawk.NewServer(opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.hawk = srv
	a.closers = append(a.closers, srv.Close)

	a.handler = a.routes()
	return a, nil
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	if a.cfg.Hawk.TrustForwarded {
		r.Use(chimw.RealIP)
	}
	r.Use(requestID)
	r.Use(a.accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", a.handleHealth)
	if a.cfg.Metrics.Enabled {
		r.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(v1 chi.Router) {
		if a.cfg.RateLimit.RequestsPerMinute > 0 {
			v1.Use(newRateLimiter(a.cfg.RateLimit.RequestsPerMinute, a.cfg.RateLimit.Burst).Middleware)
		}
		v1.Use(func(next http.Handler) http.Handler { return hawk.Middleware(a.hawk, next) })

		v1.Get("/whoami", a.handleWhoami)
		v1.Handle("/echo", http.HandlerFunc(a.handleEcho))
	})
	return r
}

func (a *app) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type whoamiResponse struct {
	ID        string `json:"id"`
	User      string `json:"user,omitempty"`
	Algorithm string `json:"algorithm"`
	Channel   string `json:"channel"`
	Ext       string `json:"ext,omitempty"`
}

func (a *app) handleWhoami(w http.ResponseWriter, r *http.Request) {
	res, ok := hawk.ResultFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	out := whoamiResponse{
		ID:        res.Credential.ID,
		User:      res.Credential.User,
		Algorithm: res.Credential.Algorithm.String(),
		Channel:   string(res.Channel),
	}
	if res.Artifacts != nil {
		out.Ext = res.Artifacts.Ext
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEcho returns the request body with its content type.
func (a *app) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, base.MaxBodyBytes))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
