// Package seed loads the challenge and reward catalog from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/store"
)

// File is the on-disk catalog layout.
type File struct {
	Challenges []ChallengeSeed `yaml:"challenges"`
	Rewards    []RewardSeed    `yaml:"rewards"`
}

// ChallengeSeed describes one challenge. Members are never seeded.
type ChallengeSeed struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"`
	Title       string `yaml:"title"`
	Sponsor     string `yaml:"sponsor"`
	GroupName   string `yaml:"group_name"`
	Duration    string `yaml:"duration"`
	Image       string `yaml:"image"`
	Description string `yaml:"description"`
	Reward      string `yaml:"reward"`
}

// RewardSeed describes one catalog reward.
type RewardSeed struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	PointsCost  int64      `yaml:"points_cost"`
	Brand       string     `yaml:"brand"`
	Type        string     `yaml:"type"`
	Value       string     `yaml:"value"`
	Description string     `yaml:"description"`
	Image       string     `yaml:"image"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
}

// Result counts what Apply wrote.
type Result struct {
	Challenges int
	Rewards    int
}

// Load reads and validates a catalog file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids are present and unique and that enums are known.
func (f *File) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for i, c := range f.Challenges {
		id := strings.TrimSpace(c.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("challenges[%d]: id is required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("challenges[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if !model.ChallengeKind(c.Kind).Valid() {
			errs = append(errs, fmt.Errorf("challenges[%d]: unknown kind %q", i, c.Kind))
		}
	}

	seen = make(map[string]bool)
	for i, r := range f.Rewards {
		id := strings.TrimSpace(r.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("rewards[%d]: id is required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("rewards[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if r.PointsCost <= 0 {
			errs = append(errs, fmt.Errorf("rewards[%d]: points_cost must be positive", i))
		}
		switch model.RewardType(r.Type) {
		case model.RewardDiscount, model.RewardSubscription, model.RewardProduct:
		default:
			errs = append(errs, fmt.Errorf("rewards[%d]: unknown type %q", i, r.Type))
		}
	}

	return errors.Join(errs...)
}

// Apply upserts every challenge and reward. Existing membership is preserved.
func (f *File) Apply(ctx context.Context, st store.Store) (*Result, error) {
	res := &Result{}
	for _, c := range f.Challenges {
		ch := &model.Challenge{
			ID:          strings.TrimSpace(c.ID),
			Kind:        model.ChallengeKind(c.Kind),
			Title:       c.Title,
			Sponsor:     c.Sponsor,
			GroupName:   c.GroupName,
			Duration:    c.Duration,
			Image:       c.Image,
			Description: c.Description,
			Reward:      c.Reward,
		}
		if err := st.UpsertChallenge(ctx, ch); err != nil {
			return res, fmt.Errorf("seed challenge %s: %w", ch.ID, err)
		}
		res.Challenges++
	}
	for _, r := range f.Rewards {
		rw := &model.Reward{
			ID:          strings.TrimSpace(r.ID),
			Title:       r.Title,
			PointsCost:  r.PointsCost,
			Brand:       r.Brand,
			Type:        model.RewardType(r.Type),
			Value:       r.Value,
			Description: r.Description,
			Image:       r.Image,
			ExpiresAt:   r.ExpiresAt,
		}
		if err := st.UpsertReward(ctx, rw); err != nil {
			return res, fmt.Errorf("seed reward %s: %w", rw.ID, err)
		}
		res.Rewards++
	}

	log.Info().
		Int("challenges", res.Challenges).
		Int("rewards", res.Rewards).
		Msg("Catalog seeded")
	return res, nil
}
