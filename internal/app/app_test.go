package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-ledger/internal/config"
	"fitness-ledger/internal/service"
)

const catalogYAML = `
challenges:
  - {id: plank, kind: public, title: Plank a day}
rewards:
  - {id: bottle, title: Bottle, points_cost: 60, type: product}
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
	return &config.Config{
		Store:  config.StoreConfig{Driver: config.DriverMemory},
		Ledger: config.LedgerConfig{AwardOnJoin: true},
		Seed:   config.SeedConfig{Path: path},
	}
}

func TestNew_MemoryStoreSeedsCatalog(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), Options{})
	require.NoError(t, err)
	defer a.Close()

	rewards, err := a.Ledger.Catalog.Rewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 1)

	_, err = a.Ledger.Profile.CompleteSetup(ctx, service.ProfileSetup{UserID: "u1", DisplayName: "u1"})
	require.NoError(t, err)

	res, err := a.Ledger.Membership.Join(ctx, "u1", "plank")
	require.NoError(t, err)
	require.NotNil(t, res.Award)
	assert.Equal(t, int64(100), res.Award.Balance)

	redeemed, err := a.Ledger.Points.Redeem(ctx, service.RedeemRequest{UserID: "u1", RewardID: "bottle", PointsCost: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(40), redeemed.Balance)
}

func TestNew_SkipSeed(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), Options{SkipSeed: true})
	require.NoError(t, err)
	defer a.Close()

	rewards, err := a.Ledger.Catalog.Rewards(ctx)
	require.NoError(t, err)
	assert.Empty(t, rewards)
}

func TestNew_BadSeedPath(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Seed.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "failed to read seed file")
}

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetLogLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	SetLogLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
