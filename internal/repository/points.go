package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/db"
)

// PointsRepository handles the append-only points history and redemption log.
type PointsRepository struct {
	q db.DBTX
}

// NewPointsRepository creates a PointsRepository.
func NewPointsRepository(q db.DBTX) *PointsRepository {
	return &PointsRepository{q: q}
}

// AppendEntry records an award. A non-nil request id the user already used
// is a no-op reported as inserted=false.
func (r *PointsRepository) AppendEntry(ctx context.Context, e *model.PointsEntry) (bool, error) {
	const query = `
		INSERT INTO points_history (user_id, amount, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, request_id) DO NOTHING
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, e.UserID, e.Amount, e.Reason, e.RequestID).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to append points entry: %w", err)
	}
	return true, nil
}

// History retrieves a user's entries, newest first. limit <= 0 means all.
func (r *PointsRepository) History(ctx context.Context, userID string, limit int) ([]*model.PointsEntry, error) {
	const query = `
		SELECT id, user_id, amount, reason, request_id, created_at
		FROM points_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`
	if limit < 0 {
		limit = 0
	}

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get points history: %w", err)
	}
	defer rows.Close()

	var entries []*model.PointsEntry
	for rows.Next() {
		var e model.PointsEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan points entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points history: %w", err)
	}
	return entries, nil
}

// AppendRedemption records a redemption. A non-nil request id the user
// already used is a no-op reported as inserted=false.
func (r *PointsRepository) AppendRedemption(ctx context.Context, red *model.Redemption) (bool, error) {
	const query = `
		INSERT INTO redeemed_rewards (user_id, reward_id, points_cost, request_id, redeemed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, request_id) DO NOTHING
		RETURNING id, redeemed_at
	`

	err := r.q.QueryRow(ctx, query, red.UserID, red.RewardID, red.PointsCost, red.RequestID).Scan(&red.ID, &red.RedeemedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to append redemption: %w", err)
	}
	return true, nil
}

// Redemptions retrieves a user's redemptions, oldest first.
func (r *PointsRepository) Redemptions(ctx context.Context, userID string) ([]*model.Redemption, error) {
	const query = `
		SELECT id, user_id, reward_id, points_cost, request_id, redeemed_at
		FROM redeemed_rewards
		WHERE user_id = $1
		ORDER BY redeemed_at ASC, id ASC
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get redemptions: %w", err)
	}
	defer rows.Close()

	var out []*model.Redemption
	for rows.Next() {
		var red model.Redemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.RewardID, &red.PointsCost, &red.RequestID, &red.RedeemedAt); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		out = append(out, &red)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redemptions: %w", err)
	}
	return out, nil
}
