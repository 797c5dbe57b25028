// Package app assembles the ledger services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fitness-ledger/internal/config"
	"fitness-ledger/internal/pkg/cache"
	"fitness-ledger/internal/pkg/db"
	"fitness-ledger/internal/pkg/events"
	"fitness-ledger/internal/pkg/metrics"
	"fitness-ledger/internal/repository"
	"fitness-ledger/internal/seed"
	"fitness-ledger/internal/service"
	"fitness-ledger/internal/store"
	"fitness-ledger/internal/store/memory"
)

// App holds the assembled ledger and the resources backing it.
type App struct {
	Config  *config.Config
	Store   store.Store
	Ledger  *service.Ledger
	Metrics *metrics.Metrics

	closers []func() error
}

// Options adjusts what New wires.
type Options struct {
	// SkipSeed leaves the catalog untouched even if seed.path is set.
	SkipSeed bool
}

// SetLogLevel applies the configured zerolog level, defaulting to info.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// New connects the store, cache and publisher selected by cfg and builds the ledger.
// Call Close to release them.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = st

	deps := service.Deps{Store: st, Metrics: a.Metrics}

	if cfg.Redis.Addr != "" {
		c, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.MembershipTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		deps.Cache = c
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Cache.MembershipTTL).Msg("Membership cache enabled")
	}

	if cfg.AMQP.URL != "" {
		p, err := events.NewRabbitPublisher(events.RabbitConfig{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		deps.Events = p
		log.Info().Str("exchange", cfg.AMQP.Exchange).Msg("Event publishing enabled")
	}

	a.Ledger = service.NewLedger(deps, cfg.Ledger.AwardOnJoin)

	if cfg.Seed.Path != "" && !opts.SkipSeed {
		if _, err := a.Seed(ctx, cfg.Seed.Path); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	if a.Config.Store.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory store, data is lost on exit")
		return memory.New(), nil
	}

	pool, err := db.NewPool(ctx, &a.Config.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool.Pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return repository.NewStore(pool), nil
}

// Seed applies the catalog file at path.
func (a *App) Seed(ctx context.Context, path string) (*seed.Result, error) {
	f, err := seed.Load(path)
	if err != nil {
		return nil, err
	}
	return f.Apply(ctx, a.Store)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
