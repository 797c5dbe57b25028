package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/require"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/events"
	"fitness-ledger/internal/pkg/metrics"
	"fitness-ledger/internal/store/memory"
)

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

type testEnv struct {
	ledger  *Ledger
	store   *memory.Store
	events  *recorder
	metrics *metrics.Metrics
	cache   *mapCache
}

func newTestEnv(t testingT, awardOnJoin bool) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   memory.New(),
		events:  &recorder{},
		metrics: metrics.New(),
		cache:   newMapCache(),
	}
	env.ledger = NewLedger(Deps{
		Store:   env.store,
		Cache:   env.cache,
		Events:  env.events,
		Metrics: env.metrics,
	}, awardOnJoin)
	return env
}

func (e *testEnv) user(t testingT, id string) *model.User {
	t.Helper()
	_, err := e.ledger.Profile.CompleteSetup(context.Background(), ProfileSetup{UserID: id, DisplayName: id})
	require.NoError(t, err)
	u, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) challenge(t testingT, id string, kind model.ChallengeKind) {
	t.Helper()
	require.NoError(t, e.store.UpsertChallenge(context.Background(), &model.Challenge{
		ID:    id,
		Kind:  kind,
		Title: "Challenge " + id,
	}))
}

func (e *testEnv) reward(t testingT, id string, cost int64) {
	t.Helper()
	require.NoError(t, e.store.UpsertReward(context.Background(), &model.Reward{
		ID:         id,
		Title:      "Reward " + id,
		PointsCost: cost,
		Type:       model.RewardDiscount,
	}))
}

func (e *testEnv) balance(t testingT, userID string) int64 {
	t.Helper()
	b, err := e.ledger.Points.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// mapCache is an in-process MembershipCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]bool
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]bool)}
}

func (c *mapCache) Get(_ context.Context, challengeID, userID string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[challengeID+"/"+userID]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, challengeID, userID string, member bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[challengeID+"/"+userID] = member
	c.sets++
	return nil
}

// drop removes an entry as if it had expired.
func (c *mapCache) drop(challengeID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, challengeID+"/"+userID)
}

func (c *mapCache) Close() error { return nil }

// recorder keeps published events in memory. Err, when set, is returned
// from Publish instead of recording.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

var _ events.Publisher = (*recorder)(nil)

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
