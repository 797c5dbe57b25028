// Package memory provides an in-process implementation of store.Store.
// Transactions are serialized by a single mutex and applied on commit only.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/store"
)

// Store keeps all documents in memory.
type Store struct {
	mu          sync.Mutex
	users       map[string]*model.User
	challenges  map[string]*model.Challenge
	rewards     map[string]*model.Reward
	history     []*model.PointsEntry
	redemptions []*model.Redemption
	pointReqs   map[string]struct{}
	redeemReqs  map[string]struct{}
	nextID      int64
	commitErr   error
	now         func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[string]*model.User),
		challenges: make(map[string]*model.Challenge),
		rewards:    make(map[string]*model.Reward),
		pointReqs:  make(map[string]struct{}),
		redeemReqs: make(map[string]struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// FailCommits makes every following transaction discard its writes and
// return err wrapped in store.ErrTransient. Pass nil to restore commits.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// WithTx runs fn against a working copy and commits it if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:          s,
		users:      make(map[string]*model.User),
		challenges: make(map[string]*model.Challenge),
		pointReqs:  make(map[string]struct{}),
		redeemReqs: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if s.commitErr != nil {
		return &transientError{err: s.commitErr}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type transientError struct{ err error }

func (e *transientError) Error() string   { return store.ErrTransient.Error() + ": " + e.err.Error() }
func (e *transientError) Unwrap() []error { return []error{store.ErrTransient, e.err} }

// GetUser returns a copy of the user document.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u.Clone(), nil
}

// GetChallenge returns a copy of the challenge document.
func (s *Store) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, store.ErrChallengeNotFound
	}
	return c.Clone(), nil
}

// ListChallenges returns challenges of the given kind, or all when kind is empty.
func (s *Store) ListChallenges(ctx context.Context, kind model.ChallengeKind) ([]*model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Challenge
	for _, c := range s.challenges {
		if kind == "" || c.Kind == kind {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.Challenge) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetReward returns a catalog entry.
func (s *Store) GetReward(ctx context.Context, id string) (*model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reward(id)
}

func (s *Store) reward(id string) (*model.Reward, error) {
	r, ok := s.rewards[id]
	if !ok {
		return nil, store.ErrRewardNotFound
	}
	cp := *r
	return &cp, nil
}

// ListRewards returns the catalog ordered by cost.
func (s *Store) ListRewards(ctx context.Context) ([]*model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Reward, 0, len(s.rewards))
	for _, r := range s.rewards {
		cp := *r
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *model.Reward) int {
		if c := cmp.Compare(a.PointsCost, b.PointsCost); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// PointsHistory returns the user's entries, newest first. limit <= 0 means all.
func (s *Store) PointsHistory(ctx context.Context, userID string, limit int) ([]*model.PointsEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.PointsEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if e.UserID != userID {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Redemptions returns the user's redemptions, oldest first.
func (s *Store) Redemptions(ctx context.Context, userID string) ([]*model.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Redemption
	for _, r := range s.redemptions {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TopUsers ranks users by earned points.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RankedUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, &model.RankedUser{UserID: u.ID, DisplayName: u.DisplayName, EarnedPoints: u.EarnedPoints})
	}
	slices.SortFunc(out, func(a, b *model.RankedUser) int {
		if c := cmp.Compare(b.EarnedPoints, a.EarnedPoints); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertChallenge creates or replaces a challenge's descriptive fields.
// Members and participants of an existing challenge are preserved.
func (s *Store) UpsertChallenge(ctx context.Context, c *model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c.Clone()
	now := s.now()
	if existing, ok := s.challenges[c.ID]; ok {
		cp.Members = existing.Members
		cp.Participants = existing.Participants
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
		cp.Participants = len(cp.Members)
	}
	cp.UpdatedAt = now
	s.challenges[c.ID] = cp
	return nil
}

// PutChallenge stores c exactly as given, counter included. It loads
// snapshots taken from stores whose counters may have drifted.
func (s *Store) PutChallenge(c *model.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ID] = c.Clone()
}

// UpsertReward creates or replaces a catalog entry.
func (s *Store) UpsertReward(ctx context.Context, r *model.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rewards[r.ID] = &cp
	return nil
}

// memTx buffers writes until commit. Documents are copied on first touch.
type memTx struct {
	s           *Store
	users       map[string]*model.User
	challenges  map[string]*model.Challenge
	history     []*model.PointsEntry
	redemptions []*model.Redemption
	pointReqs   map[string]struct{}
	redeemReqs  map[string]struct{}
}

func (t *memTx) user(id string) (*model.User, error) {
	if u, ok := t.users[id]; ok {
		return u, nil
	}
	u, ok := t.s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := u.Clone()
	t.users[id] = cp
	return cp, nil
}

func (t *memTx) challenge(id string) (*model.Challenge, error) {
	if c, ok := t.challenges[id]; ok {
		return c, nil
	}
	c, ok := t.s.challenges[id]
	if !ok {
		return nil, store.ErrChallengeNotFound
	}
	cp := c.Clone()
	t.challenges[id] = cp
	return cp, nil
}

func (t *memTx) LockUser(ctx context.Context, id string) (*model.User, error) {
	u, err := t.user(id)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (t *memTx) LockChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	c, err := t.challenge(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (t *memTx) GetReward(ctx context.Context, id string) (*model.Reward, error) {
	return t.s.reward(id)
}

func (t *memTx) CreateUser(ctx context.Context, u *model.User) error {
	if _, ok := t.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := t.s.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	cp := u.Clone()
	now := t.s.now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	t.users[u.ID] = cp
	return nil
}

func (t *memTx) SetUserChallenges(ctx context.Context, userID string, kind model.ChallengeKind, ids []string) error {
	u, err := t.user(userID)
	if err != nil {
		return err
	}
	u.SetChallengeList(kind, slices.Clone(ids))
	u.UpdatedAt = t.s.now()
	return nil
}

func (t *memTx) SetChallengeMembers(ctx context.Context, challengeID string, members []string, participants int) error {
	c, err := t.challenge(challengeID)
	if err != nil {
		return err
	}
	c.Members = slices.Clone(members)
	c.Participants = participants
	c.UpdatedAt = t.s.now()
	return nil
}

func (t *memTx) AddPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	u, err := t.user(userID)
	if err != nil {
		return 0, err
	}
	u.EarnedPoints += amount
	u.UpdatedAt = t.s.now()
	return u.EarnedPoints, nil
}

func (t *memTx) DeductPoints(ctx context.Context, userID string, cost int64) (int64, bool, error) {
	u, err := t.user(userID)
	if err != nil {
		return 0, false, err
	}
	if u.EarnedPoints < cost {
		return u.EarnedPoints, false, nil
	}
	u.EarnedPoints -= cost
	u.UpdatedAt = t.s.now()
	return u.EarnedPoints, true, nil
}

func (t *memTx) AppendPointsEntry(ctx context.Context, e *model.PointsEntry) (bool, error) {
	if e.RequestID != nil {
		key := requestKey(e.UserID, *e.RequestID)
		if seen(key, t.pointReqs, t.s.pointReqs) {
			return false, nil
		}
		t.pointReqs[key] = struct{}{}
	}
	cp := *e
	cp.ID = t.s.allocID()
	cp.CreatedAt = t.s.now()
	t.history = append(t.history, &cp)
	*e = cp
	return true, nil
}

func (t *memTx) AppendRedemption(ctx context.Context, r *model.Redemption) (bool, error) {
	if r.RequestID != nil {
		key := requestKey(r.UserID, *r.RequestID)
		if seen(key, t.redeemReqs, t.s.redeemReqs) {
			return false, nil
		}
		t.redeemReqs[key] = struct{}{}
	}
	cp := *r
	cp.ID = t.s.allocID()
	cp.RedeemedAt = t.s.now()
	t.redemptions = append(t.redemptions, &cp)
	*r = cp
	return true, nil
}

// requestKey scopes a request id to its user.
func requestKey(userID, requestID string) string {
	return userID + "\x00" + requestID
}

// allocID hands out row ids. Ids of rolled back rows are not reused, matching
// a postgres sequence. Callers hold s.mu.
func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

func seen(id string, sets ...map[string]struct{}) bool {
	for _, set := range sets {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func (t *memTx) commit() {
	for id, u := range t.users {
		t.s.users[id] = u
	}
	for id, c := range t.challenges {
		t.s.challenges[id] = c
	}
	t.s.history = append(t.s.history, t.history...)
	t.s.redemptions = append(t.s.redemptions, t.redemptions...)
	for id := range t.pointReqs {
		t.s.pointReqs[id] = struct{}{}
	}
	for id := range t.redeemReqs {
		t.s.redeemReqs[id] = struct{}{}
	}
}
