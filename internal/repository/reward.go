package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/db"
	"fitness-ledger/internal/store"
)

// RewardRepository reads the reward catalog.
type RewardRepository struct {
	q db.DBTX
}

// NewRewardRepository creates a RewardRepository.
func NewRewardRepository(q db.DBTX) *RewardRepository {
	return &RewardRepository{q: q}
}

func scanReward(row pgx.Row) (*model.Reward, error) {
	var r model.Reward
	err := row.Scan(
		&r.ID,
		&r.Title,
		&r.PointsCost,
		&r.Brand,
		&r.Type,
		&r.Value,
		&r.Description,
		&r.Image,
		&r.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetByID returns a catalog entry. Returns store.ErrRewardNotFound if absent.
func (r *RewardRepository) GetByID(ctx context.Context, id string) (*model.Reward, error) {
	const query = `
		SELECT id, title, points_cost, brand, type, value, description, image, expires_at
		FROM rewards
		WHERE id = $1
	`
	reward, err := scanReward(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRewardNotFound
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return reward, nil
}

// List returns the catalog ordered by cost.
func (r *RewardRepository) List(ctx context.Context) ([]*model.Reward, error) {
	const query = `
		SELECT id, title, points_cost, brand, type, value, description, image, expires_at
		FROM rewards
		ORDER BY points_cost ASC, id ASC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*model.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, reward)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rewards: %w", err)
	}
	return rewards, nil
}

// Upsert creates or replaces a catalog entry.
func (r *RewardRepository) Upsert(ctx context.Context, reward *model.Reward) error {
	const query = `
		INSERT INTO rewards (id, title, points_cost, brand, type, value, description, image, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			points_cost = EXCLUDED.points_cost,
			brand = EXCLUDED.brand,
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			expires_at = EXCLUDED.expires_at
	`
	_, err := r.q.Exec(ctx, query,
		reward.ID, reward.Title, reward.PointsCost, reward.Brand, string(reward.Type),
		reward.Value, reward.Description, reward.Image, reward.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reward: %w", err)
	}
	return nil
}
