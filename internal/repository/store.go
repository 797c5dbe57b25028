package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/db"
	"fitness-ledger/internal/store"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *db.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store on the given pool.
func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// classify marks connectivity failures as store.ErrTransient and leaves
// every other error untouched.
func classify(err error) error {
	if err == nil || !db.IsUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrTransient, err)
}

// WithTx runs fn in a database transaction, retrying on serialization conflicts.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{
			users:      NewUserRepository(tx),
			challenges: NewChallengeRepository(tx),
			rewards:    NewRewardRepository(tx),
			points:     NewPointsRepository(tx),
		})
	})
	return classify(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := NewUserRepository(s.pool).GetByID(ctx, id)
	return u, classify(err)
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	c, err := NewChallengeRepository(s.pool).GetByID(ctx, id)
	return c, classify(err)
}

func (s *Store) ListChallenges(ctx context.Context, kind model.ChallengeKind) ([]*model.Challenge, error) {
	list, err := NewChallengeRepository(s.pool).List(ctx, kind)
	return list, classify(err)
}

func (s *Store) GetReward(ctx context.Context, id string) (*model.Reward, error) {
	r, err := NewRewardRepository(s.pool).GetByID(ctx, id)
	return r, classify(err)
}

func (s *Store) ListRewards(ctx context.Context) ([]*model.Reward, error) {
	list, err := NewRewardRepository(s.pool).List(ctx)
	return list, classify(err)
}

func (s *Store) PointsHistory(ctx context.Context, userID string, limit int) ([]*model.PointsEntry, error) {
	list, err := NewPointsRepository(s.pool).History(ctx, userID, limit)
	return list, classify(err)
}

func (s *Store) Redemptions(ctx context.Context, userID string) ([]*model.Redemption, error) {
	list, err := NewPointsRepository(s.pool).Redemptions(ctx, userID)
	return list, classify(err)
}

func (s *Store) TopUsers(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	list, err := NewUserRepository(s.pool).TopUsers(ctx, limit)
	return list, classify(err)
}

func (s *Store) UpsertChallenge(ctx context.Context, c *model.Challenge) error {
	return classify(NewChallengeRepository(s.pool).Upsert(ctx, c))
}

func (s *Store) UpsertReward(ctx context.Context, r *model.Reward) error {
	return classify(NewRewardRepository(s.pool).Upsert(ctx, r))
}

// pgTx adapts the repositories bound to one pgx.Tx to store.Tx.
type pgTx struct {
	users      *UserRepository
	challenges *ChallengeRepository
	rewards    *RewardRepository
	points     *PointsRepository
}

func (t *pgTx) LockUser(ctx context.Context, id string) (*model.User, error) {
	return t.users.Lock(ctx, id)
}

func (t *pgTx) LockChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	return t.challenges.Lock(ctx, id)
}

func (t *pgTx) GetReward(ctx context.Context, id string) (*model.Reward, error) {
	return t.rewards.GetByID(ctx, id)
}

func (t *pgTx) CreateUser(ctx context.Context, u *model.User) error {
	return t.users.Create(ctx, u)
}

func (t *pgTx) SetUserChallenges(ctx context.Context, userID string, kind model.ChallengeKind, ids []string) error {
	return t.users.SetChallenges(ctx, userID, kind, ids)
}

func (t *pgTx) SetChallengeMembers(ctx context.Context, challengeID string, members []string, participants int) error {
	return t.challenges.SetMembers(ctx, challengeID, members, participants)
}

func (t *pgTx) AddPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	return t.users.AddPoints(ctx, userID, amount)
}

func (t *pgTx) DeductPoints(ctx context.Context, userID string, cost int64) (int64, bool, error) {
	return t.users.DeductPoints(ctx, userID, cost)
}

func (t *pgTx) AppendPointsEntry(ctx context.Context, e *model.PointsEntry) (bool, error) {
	return t.points.AppendEntry(ctx, e)
}

func (t *pgTx) AppendRedemption(ctx context.Context, r *model.Redemption) (bool, error) {
	return t.points.AppendRedemption(ctx, r)
}
