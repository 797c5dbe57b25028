package db

import (
	"context"

	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			age INT NOT NULL DEFAULT 0,
			gender TEXT NOT NULL DEFAULT '',
			fitness_level TEXT NOT NULL DEFAULT '',
			fitness_goals TEXT[] NOT NULL DEFAULT '{}',
			preferred_activities TEXT[] NOT NULL DEFAULT '{}',
			streak INT NOT NULL DEFAULT 0,
			earned_points BIGINT NOT NULL DEFAULT 0 CHECK (earned_points >= 0),
			public_challenges TEXT[] NOT NULL DEFAULT '{}',
			joined_challenges TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_points ON users(earned_points DESC);
		`,
	},
	{
		name: "challenges table",
		sql: `
		CREATE TABLE IF NOT EXISTS challenges (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('public', 'group')),
			title TEXT NOT NULL,
			sponsor TEXT NOT NULL DEFAULT '',
			group_name TEXT NOT NULL DEFAULT '',
			duration TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			reward TEXT NOT NULL DEFAULT '',
			members TEXT[] NOT NULL DEFAULT '{}',
			participants INT NOT NULL DEFAULT 0 CHECK (participants >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_challenges_kind ON challenges(kind);
		`,
	},
	{
		name: "rewards table",
		sql: `
		CREATE TABLE IF NOT EXISTS rewards (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			points_cost BIGINT NOT NULL CHECK (points_cost > 0),
			brand TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'product',
			value TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ
		);
		`,
	},
	{
		name: "points history",
		sql: `
		CREATE TABLE IF NOT EXISTS points_history (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL CHECK (amount > 0),
			reason TEXT NOT NULL,
			request_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_points_history_user_time ON points_history(user_id, created_at DESC);
		`,
	},
	{
		name: "redeemed rewards",
		sql: `
		CREATE TABLE IF NOT EXISTS redeemed_rewards (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			reward_id TEXT NOT NULL REFERENCES rewards(id),
			points_cost BIGINT NOT NULL CHECK (points_cost > 0),
			request_id TEXT,
			redeemed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_redeemed_rewards_user ON redeemed_rewards(user_id, redeemed_at);
		`,
	},
	{
		name: "request ids per user",
		sql: `
		ALTER TABLE points_history DROP CONSTRAINT IF EXISTS points_history_request_id_key;
		ALTER TABLE redeemed_rewards DROP CONSTRAINT IF EXISTS redeemed_rewards_request_id_key;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_points_history_user_request ON points_history(user_id, request_id);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_redeemed_rewards_user_request ON redeemed_rewards(user_id, request_id);
		`,
	},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, conn DBTX) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := conn.Exec(ctx, m.sql); err != nil {
			return err
		}
		log.Info().Int("step", i+1).Str("migration", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
