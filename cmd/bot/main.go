// Package main is the entry point for the fitness ledger Telegram bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fitness-ledger/internal/app"
	"fitness-ledger/internal/bot"
	"fitness-ledger/internal/config"
	"fitness-ledger/internal/pkg/lock"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app.SetLogLevel(cfg.Log.Level)
	log.Info().Str("store", cfg.Store.Driver).Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := a.Metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("Metrics listener stopped")
			}
		}()
	}

	if cfg.Reconcile.Enabled {
		sched, err := a.Ledger.Reconciler.Schedule(ctx, cfg.Reconcile.Interval)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule reconciliation")
		}
		defer func() { _ = sched.Shutdown() }()
	}

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:   cfg,
		Ledger:   a.Ledger,
		UserLock: lock.NewUserLock(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	go telegramBot.Start()

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}
