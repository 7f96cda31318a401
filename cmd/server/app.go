package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/retail-ledger/account"
	"github.com/warp/retail-ledger/cache"
	"github.com/warp/retail-ledger/config"
	"github.com/warp/retail-ledger/logger"
	"github.com/warp/retail-ledger/metrics"
	"github.com/warp/retail-ledger/store/postgres"
	"github.com/warp/retail-ledger/store/sqlite"
)

// app holds the pieces every command needs. close releases them in
// reverse order of acquisition.
type app struct {
	store   account.TxStore
	ping    func(ctx context.Context) error
	service *account.Service
	metrics *metrics.Metrics

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type appOptions struct {
	withMetrics bool
	withCache   bool
}

func openApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts appOptions) (*app, error) {
	a := &app{}

	if err := a.openStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	svcOpts := []account.Option{
		account.WithLogger(logger.WithComponent(log, "ledger")),
		account.WithClock(account.SystemClock{}),
		account.WithDueSoonDays(cfg.Ledger.DueSoonDays),
	}

	if opts.withMetrics {
		a.metrics = metrics.New(true)
		svcOpts = append(svcOpts, account.WithObserver(a.metrics))
	}

	if opts.withCache && cfg.Redis.Enabled {
		rc, err := cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			// balances are always recomputable, so run without the cache
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, debt cache disabled")
		} else {
			a.closers = append(a.closers, func() { _ = rc.Close() })
			svcOpts = append(svcOpts, account.WithCache(rc))
			log.Info().Str("addr", cfg.Redis.Addr).Msg("debt cache enabled")
		}
	}

	a.service = account.NewService(a.store, svcOpts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			a.close()
			return err
		}
		a.store, a.ping = pg, pg.Ping
		log.Info().Str("driver", "postgres").Msg("store ready")

	default:
		lite, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		a.store, a.ping = lite, lite.Ping
		log.Info().Str("driver", "sqlite").Str("path", cfg.Database.Path).Msg("store ready")
	}
	return nil
}
