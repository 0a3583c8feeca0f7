// Command hawkd is an HTTP service protected by Hawk authentication.
//
// It resolves credentials from a file, sqlite or postgres, remembers
// nonces in memory or LevelDB, and exposes /healthz, /metrics and the
// authenticated /v1/whoami and /v1/echo endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forcebit/hawk-go/internal/logging"
	"github.com/forcebit/hawk-go/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to hawkd configuration (YAML or TOML)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "hawkd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(os.Stdout, cfg.Log.Service, cfg.Log.Env, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close backends", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           a.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hawkd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("credentials", cfg.Credentials.Backend),
			slog.String("nonce", cfg.Nonce.Backend),
			slog.Duration("skew", cfg.Hawk.Skew),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
