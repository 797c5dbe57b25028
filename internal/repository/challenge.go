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

const challengeColumns = `id, kind, title, sponsor, group_name, duration, image, description,
	reward, members, participants, created_at, updated_at`

// ChallengeRepository handles challenge document persistence.
type ChallengeRepository struct {
	q db.DBTX
}

// NewChallengeRepository creates a ChallengeRepository over a pool or a transaction.
func NewChallengeRepository(q db.DBTX) *ChallengeRepository {
	return &ChallengeRepository{q: q}
}

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	var c model.Challenge
	err := row.Scan(
		&c.ID,
		&c.Kind,
		&c.Title,
		&c.Sponsor,
		&c.GroupName,
		&c.Duration,
		&c.Image,
		&c.Description,
		&c.Reward,
		&c.Members,
		&c.Participants,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID retrieves a challenge. Returns store.ErrChallengeNotFound if absent.
func (r *ChallengeRepository) GetByID(ctx context.Context, id string) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	c, err := scanChallenge(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

// Lock reads a challenge and holds a row lock until the surrounding transaction ends.
func (r *ChallengeRepository) Lock(ctx context.Context, id string) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1 FOR UPDATE`
	c, err := scanChallenge(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to lock challenge: %w", err)
	}
	return c, nil
}

// List returns challenges of one kind, or all challenges when kind is empty.
func (r *ChallengeRepository) List(ctx context.Context, kind model.ChallengeKind) ([]*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE ($1 = '' OR kind = $1) ORDER BY id`

	rows, err := r.q.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	return challenges, nil
}

// SetMembers writes the member set and the participants counter together.
func (r *ChallengeRepository) SetMembers(ctx context.Context, id string, members []string, participants int) error {
	const query = `
		UPDATE challenges
		SET members = $2, participants = $3, updated_at = NOW()
		WHERE id = $1
	`
	if members == nil {
		members = []string{}
	}

	result, err := r.q.Exec(ctx, query, id, members, participants)
	if err != nil {
		return fmt.Errorf("failed to update challenge members: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrChallengeNotFound
	}
	return nil
}

// Upsert creates a challenge or refreshes its descriptive fields.
// Membership of an existing challenge is left untouched.
func (r *ChallengeRepository) Upsert(ctx context.Context, c *model.Challenge) error {
	const query = `
		INSERT INTO challenges (id, kind, title, sponsor, group_name, duration, image,
			description, reward, members, participants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, cardinality($10::text[]), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			title = EXCLUDED.title,
			sponsor = EXCLUDED.sponsor,
			group_name = EXCLUDED.group_name,
			duration = EXCLUDED.duration,
			image = EXCLUDED.image,
			description = EXCLUDED.description,
			reward = EXCLUDED.reward,
			updated_at = NOW()
	`
	members := c.Members
	if members == nil {
		members = []string{}
	}

	_, err := r.q.Exec(ctx, query,
		c.ID, string(c.Kind), c.Title, c.Sponsor, c.GroupName, c.Duration, c.Image,
		c.Description, c.Reward, members,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert challenge: %w", err)
	}
	return nil
}
