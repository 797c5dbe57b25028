// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/db"
	"fitness-ledger/internal/service"
	"fitness-ledger/internal/store"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container, applies the schema and returns
// a Store on it. Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*Store, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pgxPool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pgxPool))
	// Applying twice must be a no-op.
	require.NoError(t, db.Migrate(ctx, pgxPool))

	pool := db.Wrap(pgxPool, 5, 10*time.Second)
	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return NewStore(pool), cleanup
}

func createUser(t *testing.T, s *Store, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, &model.User{ID: id, DisplayName: id})
	}))
}

func TestStore_CreateAndGetUser(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, &model.User{
			ID:                  "sub-1",
			DisplayName:         "Ada",
			Age:                 30,
			FitnessGoals:        []string{"endurance"},
			PreferredActivities: []string{"cycling"},
		})
	})
	require.NoError(t, err)

	u, err := s.GetUser(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)
	assert.Equal(t, int64(0), u.EarnedPoints)
	assert.Equal(t, []string{"endurance"}, u.FitnessGoals)
	assert.Empty(t, u.PublicChallenges)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, &model.User{ID: "sub-1"})
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestStore_RollbackOnError(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	createUser(t, s, "u1")
	require.NoError(t, s.UpsertChallenge(ctx, &model.Challenge{ID: "c1", Kind: model.ChallengePublic, Title: "Run"}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.SetChallengeMembers(ctx, "c1", []string{"u1"}, 1); err != nil {
			return err
		}
		if err := tx.SetUserChallenges(ctx, "u1", model.ChallengePublic, []string{"c1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c, err := s.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, c.Members)
	assert.Equal(t, 0, c.Participants)

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, u.PublicChallenges)
}

func TestStore_DeductPointsConditional(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	createUser(t, s, "u1")

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.AddPoints(ctx, "u1", 100)
		return err
	}))

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		balance, ok, err := tx.DeductPoints(ctx, "u1", 150)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(100), balance)

		balance, ok, err = tx.DeductPoints(ctx, "u1", 60)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(40), balance)
		return nil
	}))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, _, err := tx.DeductPoints(ctx, "ghost", 1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestStore_AppendDedupesRequestID(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	createUser(t, s, "u1")
	id := "req-1"

	for i := 0; i < 2; i++ {
		var inserted bool
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			var err error
			inserted, err = tx.AppendPointsEntry(ctx, &model.PointsEntry{UserID: "u1", Amount: 5, Reason: "MEAL_TRACKING", RequestID: &id})
			return err
		}))
		assert.Equal(t, i == 0, inserted)
	}

	history, err := s.PointsHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].RequestID)
	assert.Equal(t, id, *history[0].RequestID)
}

func TestStore_RequestIDsScopedPerUser(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	createUser(t, s, "u1")
	createUser(t, s, "u2")
	id := "req-1"

	for _, userID := range []string{"u1", "u2"} {
		var inserted bool
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			var err error
			inserted, err = tx.AppendPointsEntry(ctx, &model.PointsEntry{UserID: userID, Amount: 5, Reason: "MEAL_TRACKING", RequestID: &id})
			return err
		}))
		assert.True(t, inserted, userID)
	}

	for _, userID := range []string{"u1", "u2"} {
		history, err := s.PointsHistory(ctx, userID, 0)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}
}

func TestStore_ChallengeUpsertPreservesMembers(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	createUser(t, s, "u1")

	require.NoError(t, s.UpsertChallenge(ctx, &model.Challenge{ID: "g1", Kind: model.ChallengeGroup, Title: "Steps"}))
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetChallengeMembers(ctx, "g1", []string{"u1"}, 1)
	}))
	require.NoError(t, s.UpsertChallenge(ctx, &model.Challenge{ID: "g1", Kind: model.ChallengeGroup, Title: "More steps"}))

	c, err := s.GetChallenge(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "More steps", c.Title)
	assert.Equal(t, []string{"u1"}, c.Members)
	assert.Equal(t, 1, c.Participants)

	groups, err := s.ListChallenges(ctx, model.ChallengeGroup)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	public, err := s.ListChallenges(ctx, model.ChallengePublic)
	require.NoError(t, err)
	assert.Empty(t, public)
}

func TestStore_RewardsAndRanking(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.UpsertReward(ctx, &model.Reward{ID: "big", Title: "Annual plan", PointsCost: 5000, Type: model.RewardSubscription}))
	require.NoError(t, s.UpsertReward(ctx, &model.Reward{ID: "small", Title: "10% off", PointsCost: 200, Type: model.RewardDiscount}))

	rewards, err := s.ListRewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, "small", rewards[0].ID)

	_, err = s.GetReward(ctx, "none")
	assert.ErrorIs(t, err, store.ErrRewardNotFound)

	for i, id := range []string{"a", "b", "c"} {
		createUser(t, s, id)
		amount := int64((i + 1) * 100)
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.AddPoints(ctx, id, amount)
			return err
		}))
	}

	top, err := s.TopUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "c", top[0].UserID)
	assert.Equal(t, "b", top[1].UserID)
}

// TestLedger_OnPostgres runs the ledger services against the real schema,
// including two concurrent redemptions racing for one balance.
func TestLedger_OnPostgres(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ledger := service.NewLedger(service.Deps{Store: s}, false)
	_, err := ledger.Profile.CompleteSetup(ctx, service.ProfileSetup{UserID: "u", DisplayName: "u"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertChallenge(ctx, &model.Challenge{ID: "c1", Kind: model.ChallengePublic, Title: "Plank"}))
	require.NoError(t, s.UpsertReward(ctx, &model.Reward{ID: "r1", Title: "Bottle", PointsCost: 60, Type: model.RewardProduct}))

	joined, err := ledger.Membership.Join(ctx, "u", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, joined.Participants)
	again, err := ledger.Membership.Join(ctx, "u", "c1")
	require.NoError(t, err)
	assert.False(t, again.Changed)

	_, err = ledger.Points.Award(ctx, service.AwardRequest{UserID: "u", Amount: 100, Reason: catalog.ReasonChallengeJoin})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Points.Redeem(ctx, service.RedeemRequest{UserID: "u", RewardID: "r1", PointsCost: 60})
		}(i)
	}
	wg.Wait()

	var committed, rejected int
	for _, err := range errs {
		switch service.RedemptionState(err) {
		case service.StateCommitted:
			committed++
		case service.StateRejected:
			assert.ErrorIs(t, err, service.ErrInsufficientBalance)
			rejected++
		default:
			t.Fatalf("unexpected redemption failure: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)

	balance, err := ledger.Points.Balance(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	report, err := ledger.Points.Audit(ctx, "u")
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	left, err := ledger.Membership.Leave(ctx, "u", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, left.Participants)
}
