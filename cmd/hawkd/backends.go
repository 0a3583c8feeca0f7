package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forcebit/hawk-go/pkg/config"
	"github.com/forcebit/hawk-go/pkg/credential"
	"github.com/forcebit/hawk-go/pkg/nonce"
)

// openResolver builds the credential resolver named by cfg. The returned
// close func is never nil.
func openResolver(ctx context.Context, cfg config.CredentialsConfig) (credential.Resolver, func() error, error) {
	noop := func() error { return nil }

	var dialector gorm.Dialector
	switch cfg.Backend {
	case config.BackendFile:
		resolver, err := credential.LoadFile(cfg.File)
		if err != nil {
			return nil, noop, err
		}
		return resolver, noop, nil
	case config.BackendSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case config.BackendPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, noop, fmt.Errorf("unknown credentials backend %q", cfg.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, noop, fmt.Errorf("open %s credential store: %w", cfg.Backend, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, noop, fmt.Errorf("open %s credential store: %w", cfg.Backend, err)
	}

	resolver := credential.NewSQLResolver(db)
	if cfg.Migrate {
		if err := resolver.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, noop, fmt.Errorf("migrate credential store: %w", err)
		}
	}
	return resolver, sqlDB.Close, nil
}

// openGuard builds the nonce guard named by cfg. Nonces are remembered until
// their request timestamp leaves the skew window.
func openGuard(ctx context.Context, cfg config.NonceConfig, skew time.Duration, reg prometheus.Registerer, logger *slog.Logger) (nonce.Guard, func() error, error) {
	switch cfg.Backend {
	case config.NonceMemory:
		g, err := nonce.NewMemoryGuard(nonce.MemoryOptions{
			TTL:             skew,
			Capacity:        cfg.Capacity,
			JanitorInterval: cfg.SweepInterval,
			Registerer:      reg,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.NonceLevelDB:
		g, err := nonce.OpenLevelDBGuard(cfg.Path, nonce.LevelDBOptions{
			TTL:        skew,
			Registerer: reg,
		})
		if err != nil {
			return nil, nil, err
		}
		sweepCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			sweepLevelDB(sweepCtx, g, cfg.SweepInterval, logger)
		}()
		return g, func() error {
			cancel()
			<-done
			return g.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown nonce backend %q", cfg.Backend)
	}
}

func sweepLevelDB(ctx context.Context, g *nonce.LevelDBGuard, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := g.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("nonce sweep failed", slog.Any("error", err))
				}
				continue
			}
			if removed > 0 {
				logger.Debug("nonce sweep", slog.Int("removed", removed))
			}
		}
	}
}
