package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fitness-ledger/internal/app"
	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/service"
)

// withApp opens the ledger, runs fn and releases it.
func withApp(cmd *cobra.Command, open opener, flags *globalFlags, opts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx, flags, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requestID returns id, or a fresh random one when empty.
func requestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func migrateCmd(open opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the postgres store migrates it.
			return withApp(cmd, open, flags, app.Options{SkipSeed: true}, func(ctx context.Context, a *app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

func seedCmd(open opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Upsert challenges and rewards from a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, flags, app.Options{SkipSeed: true}, func(ctx context.Context, a *app.App) error {
				res, err := a.Seed(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func reconcileCmd(open opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [challenge-id]",
		Short: "Recompute participant counters from member sets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					repaired, err := a.Ledger.Reconciler.ReconcileChallenge(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"challenge_id": args[0], "repaired": repaired})
				}

				report, err := a.Ledger.Reconciler.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				failed := make(map[string]string, len(report.Failed))
				for id, err := range report.Failed {
					failed[id] = err.Error()
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"checked":  report.Checked,
					"repaired": report.Repaired,
					"failed":   failed,
				}); err != nil {
					return err
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d challenges failed to reconcile", len(failed))
				}
				return nil
			})
		},
	}
}

func awardCmd(open opener, flags *globalFlags) *cobra.Command {
	var (
		amount int64
		id     string
	)
	cmd := &cobra.Command{
		Use:   "award <user-id> <reason>",
		Short: "Award points for a reason from the points table",
		Long: `Award points to a user. The reason is a points table code such as
WORKOUT_COMPLETION or its keyword such as workout. Without --amount the
table value is used.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := catalog.Reason(strings.ToUpper(args[1]))
			if cfg, ok := catalog.ReasonByCommand(strings.ToLower(args[1])); ok {
				reason = cfg.Reason
			}
			points := amount
			if points == 0 {
				points = reason.Points()
			}
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				res, err := a.Ledger.Points.Award(ctx, service.AwardRequest{
					UserID:    args[0],
					Amount:    points,
					Reason:    reason,
					RequestID: requestID(id),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "Points to award (defaults to the table value)")
	cmd.Flags().StringVar(&id, "request-id", "", "Idempotency key (random if empty)")
	return cmd
}

func redeemCmd(open opener, flags *globalFlags) *cobra.Command {
	var (
		cost int64
		id   string
	)
	cmd := &cobra.Command{
		Use:   "redeem <user-id> <reward-id>",
		Short: "Redeem a catalog reward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				pointsCost := cost
				if pointsCost == 0 {
					reward, err := a.Ledger.Catalog.Reward(ctx, args[1])
					if err != nil {
						return err
					}
					pointsCost = reward.PointsCost
				}
				res, err := a.Ledger.Points.Redeem(ctx, service.RedeemRequest{
					UserID:     args[0],
					RewardID:   args[1],
					PointsCost: pointsCost,
					RequestID:  requestID(id),
				})
				if err != nil {
					return fmt.Errorf("%s: %w", service.RedemptionState(err), err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Int64Var(&cost, "cost", 0, "Expected cost (defaults to the catalog cost)")
	cmd.Flags().StringVar(&id, "request-id", "", "Idempotency key (random if empty)")
	return cmd
}

func joinCmd(open opener, flags *globalFlags, join bool) *cobra.Command {
	use, short := "join", "Add a user to a challenge"
	if !join {
		use, short = "leave", "Remove a user from a challenge"
	}
	return &cobra.Command{
		Use:   use + " <user-id> <challenge-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				var (
					res *service.MembershipResult
					err error
				)
				if join {
					res, err = a.Ledger.Membership.Join(ctx, args[0], args[1])
				} else {
					res, err = a.Ledger.Membership.Leave(ctx, args[0], args[1])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func balanceCmd(open opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Print a user's points balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				balance, err := a.Ledger.Points.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"user_id": args[0], "balance": balance})
			})
		},
	}
}

func auditCmd(open opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <user-id>...",
		Short: "Check balances against their points history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				var inconsistent int
				for _, userID := range args {
					report, err := a.Ledger.Points.Audit(ctx, userID)
					if err != nil {
						return err
					}
					if err := printJSON(cmd.OutOrStdout(), map[string]any{
						"user_id":    report.UserID,
						"balance":    report.Balance,
						"expected":   report.Expected(),
						"consistent": report.Consistent(),
					}); err != nil {
						return err
					}
					if !report.Consistent() {
						inconsistent++
					}
				}
				if inconsistent > 0 {
					return fmt.Errorf("%d of %d balances inconsistent: %w", inconsistent, len(args), service.ErrInvariantViolation)
				}
				return nil
			})
		},
	}
}

func userCmd(open opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id> [display-name]",
		Short: "Create a profile if it does not exist and print it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if len(args) == 2 {
				name = args[1]
			}
			return withApp(cmd, open, flags, app.Options{}, func(ctx context.Context, a *app.App) error {
				user, created, err := a.Ledger.Profile.EnsureUser(ctx, args[0], name)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"user_id":           user.ID,
					"display_name":      user.DisplayName,
					"earned_points":     user.EarnedPoints,
					"public_challenges": user.PublicChallenges,
					"joined_challenges": user.JoinedChallenges,
					"created":           created,
				})
			})
		},
	}
}
