package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-ledger/internal/model"
)

func TestReconcileAll(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.store.PutChallenge(&model.Challenge{ID: "ok", Kind: model.ChallengePublic, Members: []string{"a"}, Participants: 1})
	env.store.PutChallenge(&model.Challenge{ID: "over", Kind: model.ChallengePublic, Members: []string{"a"}, Participants: 4})
	env.store.PutChallenge(&model.Challenge{ID: "dup", Kind: model.ChallengeGroup, Members: []string{"a", "b", "a"}, Participants: 3})

	report, err := env.ledger.Reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.ElementsMatch(t, []string{"over", "dup"}, report.Repaired)
	assert.Empty(t, report.Failed)

	dup, err := env.store.GetChallenge(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, dup.Members)
	assert.Equal(t, 2, dup.Participants)

	over, err := env.store.GetChallenge(ctx, "over")
	require.NoError(t, err)
	assert.Equal(t, 1, over.Participants)

	report, err = env.ledger.Reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Repaired)
}

func TestReconcileChallenge_Errors(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.ledger.Reconciler.ReconcileChallenge(ctx, "missing")
	assert.True(t, IsNotFound(err))

	env.store.PutChallenge(&model.Challenge{ID: "c1", Members: []string{"a"}, Participants: 0})
	env.store.FailCommits(errors.New("connection reset"))
	_, err = env.ledger.Reconciler.ReconcileChallenge(ctx, "c1")
	assert.True(t, IsRetryable(err))

	ch, err := env.store.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, ch.Participants)
}

func TestReconciler_Schedule(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	env.store.PutChallenge(&model.Challenge{ID: "c1", Members: []string{"a", "b"}, Participants: 0})

	sched, err := env.ledger.Reconciler.Schedule(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	assert.Eventually(t, func() bool {
		ch, err := env.store.GetChallenge(ctx, "c1")
		return err == nil && ch.Participants == 2
	}, 2*time.Second, 20*time.Millisecond)
}
