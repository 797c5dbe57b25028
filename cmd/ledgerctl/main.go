// Package main provides ledgerctl, the operator CLI for the fitness ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fitness-ledger/internal/app"
	"fitness-ledger/internal/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd(openApp).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// opener builds the ledger for one command invocation.
type opener func(ctx context.Context, flags *globalFlags, opts app.Options) (*app.App, error)

type globalFlags struct {
	configPath string
	logLevel   string
	driver     string
}

func openApp(ctx context.Context, flags *globalFlags, opts app.Options) (*app.App, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.driver != "" {
		cfg.Store.Driver = flags.driver
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	app.SetLogLevel(level)
	return app.New(ctx, cfg, opts)
}

func rootCmd(open opener) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the fitness points ledger",
		Long: `ledgerctl runs ledger operations against the configured store:
schema migration, catalog seeding, participant reconciliation, balance
audits and manual awards, redemptions and membership changes.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config", "Directory containing config.yaml")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.driver, "store", "", "Override store driver (postgres, memory)")

	cmd.AddCommand(
		migrateCmd(open, flags),
		seedCmd(open, flags),
		userCmd(open, flags),
		reconcileCmd(open, flags),
		awardCmd(open, flags),
		redeemCmd(open, flags),
		joinCmd(open, flags, true),
		joinCmd(open, flags, false),
		balanceCmd(open, flags),
		auditCmd(open, flags),
	)
	return cmd
}
