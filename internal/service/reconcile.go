package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/metrics"
	"fitness-ledger/internal/store"
)

// ReconcileReport summarises a reconciliation sweep.
type ReconcileReport struct {
	Checked  int
	Repaired []string
	Failed   map[string]error
}

// Reconciler recomputes participants from members for challenges whose
// counter drifted, e.g. data written before membership changes were transactional.
type Reconciler struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewReconciler creates a Reconciler.
func NewReconciler(deps Deps) *Reconciler {
	return &Reconciler{store: deps.Store, metrics: deps.Metrics}
}

// repairChallenge dedupes members and resets participants under the
// challenge lock. Returns the document as committed.
func repairChallenge(ctx context.Context, st store.Store, challengeID string) (*model.Challenge, bool, error) {
	var out *model.Challenge
	var repaired bool
	err := st.WithTx(ctx, func(tx store.Tx) error {
		ch, err := tx.LockChallenge(ctx, challengeID)
		if err != nil {
			return err
		}
		members, dup := dedupe(ch.Members)
		repaired = dup || ch.Participants != len(members)
		if repaired {
			if err := tx.SetChallengeMembers(ctx, challengeID, members, len(members)); err != nil {
				return err
			}
			ch.Members = members
			ch.Participants = len(members)
		}
		out = ch
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, repaired, nil
}

// ReconcileChallenge repairs one challenge and reports whether it had drifted.
func (r *Reconciler) ReconcileChallenge(ctx context.Context, challengeID string) (bool, error) {
	started := time.Now()
	ch, repaired, err := repairChallenge(ctx, r.store, challengeID)
	r.metrics.Observe("reconcile", outcomeOf(err), started)
	if err != nil {
		return false, fmt.Errorf("failed to reconcile challenge %s: %w", challengeID, err)
	}
	if repaired {
		r.metrics.Repaired("reconcile")
		log.Warn().
			Err(ErrInvariantViolation).
			Str("challenge_id", challengeID).
			Int("participants", ch.Participants).
			Msg("Participant counter recomputed")
	}
	return repaired, nil
}

// ReconcileAll sweeps every challenge. A failure on one challenge does not
// stop the sweep; it is recorded in the report.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	list, err := r.store.ListChallenges(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	report := &ReconcileReport{Failed: make(map[string]error)}
	for _, ch := range list {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		repaired, err := r.ReconcileChallenge(ctx, ch.ID)
		if err != nil {
			report.Failed[ch.ID] = err
			continue
		}
		if repaired {
			report.Repaired = append(report.Repaired, ch.ID)
		}
	}

	log.Info().
		Int("checked", report.Checked).
		Int("repaired", len(report.Repaired)).
		Int("failed", len(report.Failed)).
		Msg("Reconciliation sweep finished")
	return report, nil
}

// Schedule runs ReconcileAll every interval until the returned scheduler is shut down.
func (r *Reconciler) Schedule(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := r.ReconcileAll(ctx); err != nil {
				log.Error().Err(err).Msg("Reconciliation sweep failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	sched.Start()
	log.Info().Dur("interval", interval).Msg("Reconciliation scheduled")
	return sched, nil
}
