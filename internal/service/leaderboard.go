package service

import (
	"context"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/store"
)

// Leaderboard limits.
const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// LeaderboardService ranks users by earned points.
type LeaderboardService struct {
	store store.Store
}

// NewLeaderboardService creates a LeaderboardService.
func NewLeaderboardService(deps Deps) *LeaderboardService {
	return &LeaderboardService{store: deps.Store}
}

// Top retrieves the top users by earned points, ties broken by user id.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	return s.store.TopUsers(ctx, limit)
}
