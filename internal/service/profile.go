package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/store"
)

// ProfileSetup carries the fields collected when a user finishes onboarding.
// UserID is the identity provider's subject.
type ProfileSetup struct {
	UserID              string
	DisplayName         string
	AvatarURL           string
	Age                 int
	Gender              string
	FitnessLevel        string
	FitnessGoals        []string
	PreferredActivities []string
}

// ProfileService creates and reads user documents.
type ProfileService struct {
	store store.Store
}

// NewProfileService creates a ProfileService.
func NewProfileService(deps Deps) *ProfileService {
	return &ProfileService{store: deps.Store}
}

// CompleteSetup creates the user document with a zero balance and no
// challenges. It runs once per user; a repeat returns ErrProfileExists.
func (s *ProfileService) CompleteSetup(ctx context.Context, p ProfileSetup) (*model.User, error) {
	if p.UserID == "" {
		return nil, ErrInvalidID
	}
	if p.Age < 0 {
		return nil, fmt.Errorf("invalid age %d", p.Age)
	}

	user := &model.User{
		ID:                  p.UserID,
		DisplayName:         p.DisplayName,
		AvatarURL:           p.AvatarURL,
		Age:                 p.Age,
		Gender:              p.Gender,
		FitnessLevel:        p.FitnessLevel,
		FitnessGoals:        p.FitnessGoals,
		PreferredActivities: p.PreferredActivities,
		PublicChallenges:    []string{},
		JoinedChallenges:    []string{},
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	log.Info().Str("user_id", p.UserID).Str("display_name", p.DisplayName).Msg("Profile created")
	return s.store.GetUser(ctx, p.UserID)
}

// EnsureUser returns the user, creating a bare profile if none exists.
// Returns whether it was newly created.
func (s *ProfileService) EnsureUser(ctx context.Context, userID, displayName string) (*model.User, bool, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	user, err = s.CompleteSetup(ctx, ProfileSetup{UserID: userID, DisplayName: displayName})
	if errors.Is(err, ErrProfileExists) {
		// Lost a race with a concurrent setup.
		user, err = s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to ensure user: %w", err)
		}
		return user, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// GetProfile retrieves a user document.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return user, nil
}
