// Package store defines the document-store contract the ledger runs on.
// Every multi-document or precondition-gated mutation goes through WithTx.
package store

import (
	"context"
	"errors"
	"fmt"

	"fitness-ledger/internal/model"
)

// Common errors returned by store implementations.
var (
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrChallengeNotFound = fmt.Errorf("challenge %w", ErrNotFound)
	ErrRewardNotFound    = fmt.Errorf("reward %w", ErrNotFound)

	// ErrAlreadyExists is returned when a document is created twice.
	ErrAlreadyExists = errors.New("already exists")

	// ErrTransient marks backend unavailability. Operations failing with it
	// committed nothing and are safe to retry.
	ErrTransient = errors.New("transient store failure")
)

// Store is the non-transactional face of the document store.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	ListChallenges(ctx context.Context, kind model.ChallengeKind) ([]*model.Challenge, error)
	GetReward(ctx context.Context, id string) (*model.Reward, error)
	ListRewards(ctx context.Context) ([]*model.Reward, error)
	PointsHistory(ctx context.Context, userID string, limit int) ([]*model.PointsEntry, error)
	Redemptions(ctx context.Context, userID string) ([]*model.Redemption, error)
	TopUsers(ctx context.Context, limit int) ([]*model.RankedUser, error)

	// UpsertChallenge and UpsertReward serve seed data and admin tooling.
	UpsertChallenge(ctx context.Context, c *model.Challenge) error
	UpsertReward(ctx context.Context, r *model.Reward) error

	// WithTx runs fn in one transaction. The transaction commits only when fn
	// returns nil; otherwise nothing fn wrote is visible to other readers.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// LockUser and LockChallenge read a document and hold it until commit.
	// Callers lock the user before the challenge.
	LockUser(ctx context.Context, id string) (*model.User, error)
	LockChallenge(ctx context.Context, id string) (*model.Challenge, error)
	GetReward(ctx context.Context, id string) (*model.Reward, error)

	CreateUser(ctx context.Context, u *model.User) error
	SetUserChallenges(ctx context.Context, userID string, kind model.ChallengeKind, ids []string) error
	SetChallengeMembers(ctx context.Context, challengeID string, members []string, participants int) error

	// AddPoints increments the balance and returns the new value.
	AddPoints(ctx context.Context, userID string, amount int64) (int64, error)
	// DeductPoints decrements the balance only if it stays non-negative.
	// ok is false, with no mutation, when the balance is short.
	DeductPoints(ctx context.Context, userID string, cost int64) (balance int64, ok bool, err error)

	// AppendPointsEntry and AppendRedemption return inserted=false without
	// writing when the same user already has an entry with the same non-nil
	// request id. Request ids are scoped per user.
	AppendPointsEntry(ctx context.Context, e *model.PointsEntry) (inserted bool, err error)
	AppendRedemption(ctx context.Context, r *model.Redemption) (inserted bool, err error)
}
