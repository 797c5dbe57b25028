package service

import (
	"context"
	"fmt"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/store"
)

// CatalogService serves the read-only reward catalog, the challenge list and
// the points table.
type CatalogService struct {
	store store.Store
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(deps Deps) *CatalogService {
	return &CatalogService{store: deps.Store}
}

// Rewards returns the catalog ordered by cost.
func (s *CatalogService) Rewards(ctx context.Context) ([]*model.Reward, error) {
	return s.store.ListRewards(ctx)
}

// Reward returns one catalog entry.
func (s *CatalogService) Reward(ctx context.Context, id string) (*model.Reward, error) {
	r, err := s.store.GetReward(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return r, nil
}

// Challenges lists challenges of kind, or all challenges when kind is empty.
func (s *CatalogService) Challenges(ctx context.Context, kind model.ChallengeKind) ([]*model.Challenge, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("unknown challenge kind %q", kind)
	}
	return s.store.ListChallenges(ctx, kind)
}

// Challenge returns one challenge.
func (s *CatalogService) Challenge(ctx context.Context, id string) (*model.Challenge, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

// PointsTable returns the canonical award values in display order.
func (s *CatalogService) PointsTable() []catalog.ReasonConfig {
	return catalog.GetAllReasons()
}
