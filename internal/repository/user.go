// Package repository provides the PostgreSQL implementation of the document store.
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

const userColumns = `id, display_name, avatar_url, age, gender, fitness_level, fitness_goals,
	preferred_activities, streak, earned_points, public_challenges, joined_challenges,
	created_at, updated_at`

// UserRepository handles user document persistence.
type UserRepository struct {
	q db.DBTX
}

// NewUserRepository creates a UserRepository over a pool or a transaction.
func NewUserRepository(q db.DBTX) *UserRepository {
	return &UserRepository{q: q}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Age,
		&u.Gender,
		&u.FitnessLevel,
		&u.FitnessGoals,
		&u.PreferredActivities,
		&u.Streak,
		&u.EarnedPoints,
		&u.PublicChallenges,
		&u.JoinedChallenges,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user document. Returns store.ErrAlreadyExists on a duplicate id.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	const query = `
		INSERT INTO users (id, display_name, avatar_url, age, gender, fitness_level,
			fitness_goals, preferred_activities, streak, earned_points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	goals, activities := u.FitnessGoals, u.PreferredActivities
	if goals == nil {
		goals = []string{}
	}
	if activities == nil {
		activities = []string{}
	}

	err := r.q.QueryRow(ctx, query,
		u.ID, u.DisplayName, u.AvatarURL, u.Age, u.Gender, u.FitnessLevel,
		goals, activities, u.Streak, u.EarnedPoints,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id. Returns store.ErrUserNotFound if absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Lock reads a user and holds a row lock until the surrounding transaction ends.
func (r *UserRepository) Lock(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	u, err := scanUser(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return u, nil
}

// SetChallenges replaces the challenge list tracking challenges of the given kind.
func (r *UserRepository) SetChallenges(ctx context.Context, id string, kind model.ChallengeKind, ids []string) error {
	query := `UPDATE users SET public_challenges = $2, updated_at = NOW() WHERE id = $1`
	if kind == model.ChallengeGroup {
		query = `UPDATE users SET joined_challenges = $2, updated_at = NOW() WHERE id = $1`
	}
	if ids == nil {
		ids = []string{}
	}

	result, err := r.q.Exec(ctx, query, id, ids)
	if err != nil {
		return fmt.Errorf("failed to update user challenges: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// AddPoints increments earned_points and returns the new balance.
func (r *UserRepository) AddPoints(ctx context.Context, id string, amount int64) (int64, error) {
	const query = `
		UPDATE users
		SET earned_points = earned_points + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING earned_points
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return balance, nil
}

// DeductPoints decrements earned_points only when the balance covers cost.
// The check and the decrement are one statement.
func (r *UserRepository) DeductPoints(ctx context.Context, id string, cost int64) (int64, bool, error) {
	const query = `
		UPDATE users
		SET earned_points = earned_points - $2, updated_at = NOW()
		WHERE id = $1 AND earned_points >= $2
		RETURNING earned_points
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, id, cost).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to deduct points: %w", err)
	}

	// Either the user is missing or the balance is short.
	err = r.q.QueryRow(ctx, `SELECT earned_points FROM users WHERE id = $1`, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, store.ErrUserNotFound
		}
		return 0, false, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, false, nil
}

// TopUsers retrieves the top N users by earned points.
func (r *UserRepository) TopUsers(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	const query = `
		SELECT id, display_name, earned_points
		FROM users
		ORDER BY earned_points DESC, id ASC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.RankedUser
	for rows.Next() {
		var u model.RankedUser
		if err := rows.Scan(&u.UserID, &u.DisplayName, &u.EarnedPoints); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
