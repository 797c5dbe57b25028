package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/cache"
	"fitness-ledger/internal/pkg/events"
	"fitness-ledger/internal/pkg/metrics"
	"fitness-ledger/internal/store"
)

// MembershipResult is the state of one (user, challenge) pair after Join or Leave.
type MembershipResult struct {
	UserID       string
	ChallengeID  string
	Kind         model.ChallengeKind
	Member       bool
	Participants int
	// Changed is false when the call found the pair already in the requested state.
	Changed bool
	// Repaired is true when drift in the challenge document was healed by this commit.
	Repaired bool
	// Award is set when the join credited CHALLENGE_JOIN points.
	Award *AwardResult
}

// MembershipService keeps challenge.members, challenge.participants and the
// user's challenge list in agreement.
type MembershipService struct {
	store       store.Store
	cache       cache.MembershipCache
	events      events.Publisher
	metrics     *metrics.Metrics
	awardOnJoin bool
}

// NewMembershipService creates a MembershipService. With awardOnJoin the
// first join of each (user, challenge) pair credits CHALLENGE_JOIN points in
// the same transaction.
func NewMembershipService(deps Deps, awardOnJoin bool) *MembershipService {
	deps = deps.withDefaults()
	return &MembershipService{
		store:       deps.Store,
		cache:       deps.Cache,
		events:      deps.Events,
		metrics:     deps.Metrics,
		awardOnJoin: awardOnJoin,
	}
}

// JoinRequestID is the request id of the points credited for a join.
// It is stable so a user who leaves and rejoins is credited once. The
// challenge id is length-prefixed so ids containing ':' cannot collide.
func JoinRequestID(challengeID, userID string) string {
	return fmt.Sprintf("join:%d:%s:%s", len(challengeID), challengeID, userID)
}

// Join adds the user to the challenge. Repeating it is a no-op.
func (s *MembershipService) Join(ctx context.Context, userID, challengeID string) (*MembershipResult, error) {
	return s.change(ctx, "join", userID, challengeID, true)
}

// Leave removes the user from the challenge. Repeating it is a no-op.
func (s *MembershipService) Leave(ctx context.Context, userID, challengeID string) (*MembershipResult, error) {
	return s.change(ctx, "leave", userID, challengeID, false)
}

func (s *MembershipService) change(ctx context.Context, op, userID, challengeID string, join bool) (*MembershipResult, error) {
	started := time.Now()
	if userID == "" || challengeID == "" {
		s.metrics.Observe(op, metrics.OutcomeRejected, started)
		return nil, ErrInvalidID
	}

	var res *MembershipResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		ch, err := tx.LockChallenge(ctx, challengeID)
		if err != nil {
			return err
		}

		members, drift := dedupe(ch.Members)
		repaired := drift || ch.Participants != len(members)
		list, listDrift := dedupe(user.ChallengeList(ch.Kind))

		var membersChanged, listChanged bool
		if join {
			members, membersChanged = insert(members, userID)
			list, listChanged = insert(list, challengeID)
		} else {
			members, membersChanged = remove(members, userID)
			list, listChanged = remove(list, challengeID)
		}

		if membersChanged || repaired {
			if err := tx.SetChallengeMembers(ctx, challengeID, members, len(members)); err != nil {
				return err
			}
		}
		if listChanged || listDrift {
			if err := tx.SetUserChallenges(ctx, userID, ch.Kind, list); err != nil {
				return err
			}
		}

		res = &MembershipResult{
			UserID:       userID,
			ChallengeID:  challengeID,
			Kind:         ch.Kind,
			Member:       join,
			Participants: len(members),
			Changed:      membersChanged || listChanged,
			Repaired:     repaired,
		}
		if repaired {
			log.Warn().
				Err(ErrInvariantViolation).
				Str("challenge_id", challengeID).
				Int("participants", ch.Participants).
				Int("members", len(ch.Members)).
				Int("unique_members", len(members)).
				Msg("Participant counter drift repaired")
		}

		if join && membersChanged && s.awardOnJoin {
			award, err := awardTx(ctx, tx, AwardRequest{
				UserID:    userID,
				Amount:    catalog.ReasonChallengeJoin.Points(),
				Reason:    catalog.ReasonChallengeJoin,
				RequestID: JoinRequestID(challengeID, userID),
			})
			if err != nil {
				return err
			}
			res.Award = award
		}
		return nil
	})
	if err != nil {
		s.metrics.Observe(op, outcomeOf(err), started)
		ev := log.Error()
		if IsNotFound(err) {
			ev = log.Warn()
		}
		ev.Err(err).Str("user_id", userID).Str("challenge_id", challengeID).Msgf("Challenge %s failed", op)
		return nil, fmt.Errorf("failed to %s challenge: %w", op, err)
	}

	s.committed(ctx, op, res, started)
	return res, nil
}

// committed runs the post-commit side effects of a membership change.
func (s *MembershipService) committed(ctx context.Context, op string, res *MembershipResult, started time.Time) {
	if err := s.cache.Set(ctx, res.ChallengeID, res.UserID, res.Member); err != nil {
		log.Warn().Err(err).Str("challenge_id", res.ChallengeID).Str("user_id", res.UserID).Msg("Failed to refresh membership cache")
	}
	if res.Repaired {
		s.metrics.Repaired(op)
	}

	if !res.Changed {
		s.metrics.Observe(op, metrics.OutcomeNoop, started)
		return
	}
	s.metrics.Observe(op, metrics.OutcomeOK, started)

	log.Info().
		Str("user_id", res.UserID).
		Str("challenge_id", res.ChallengeID).
		Str("kind", string(res.Kind)).
		Int("participants", res.Participants).
		Msgf("Challenge %s committed", op)

	typ := events.ChallengeLeft
	if res.Member {
		typ = events.ChallengeJoined
	}
	e := events.New(typ, res.UserID)
	e.ChallengeID = res.ChallengeID
	publish(ctx, s.events, e)

	if res.Award != nil && !res.Award.Duplicate {
		s.metrics.Awarded(res.Award.Amount)
		ae := events.New(events.PointsAwarded, res.UserID)
		ae.Amount = res.Award.Amount
		ae.Reason = string(res.Award.Reason)
		ae.Balance = res.Award.Balance
		ae.RequestID = JoinRequestID(res.ChallengeID, res.UserID)
		publish(ctx, s.events, ae)
	}
}

// IsMember answers from the cache when it can. A cached answer is at most
// the cache TTL old; writes through this service refresh it immediately.
func (s *MembershipService) IsMember(ctx context.Context, userID, challengeID string) (bool, error) {
	if userID == "" || challengeID == "" {
		return false, ErrInvalidID
	}

	member, found, err := s.cache.Get(ctx, challengeID, userID)
	if err != nil {
		log.Warn().Err(err).Str("challenge_id", challengeID).Msg("Membership cache read failed")
	} else if found {
		return member, nil
	}

	ch, err := s.Members(ctx, challengeID)
	if err != nil {
		return false, err
	}
	member = ch.HasMember(userID)

	if err := s.cache.Set(ctx, challengeID, userID, member); err != nil {
		log.Warn().Err(err).Str("challenge_id", challengeID).Msg("Membership cache write failed")
	}
	return member, nil
}

// Members returns the challenge document. Counter drift found on read is
// repaired before returning.
func (s *MembershipService) Members(ctx context.Context, challengeID string) (*model.Challenge, error) {
	ch, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	if !drifted(ch) {
		return ch, nil
	}

	log.Warn().
		Err(ErrInvariantViolation).
		Str("challenge_id", challengeID).
		Int("participants", ch.Participants).
		Int("members", len(ch.Members)).
		Msg("Participant counter drift detected on read")

	healed, repaired, err := repairChallenge(ctx, s.store, challengeID)
	if err != nil {
		log.Error().Err(err).Str("challenge_id", challengeID).Msg("Failed to repair challenge")
		return ch, nil
	}
	if repaired {
		s.metrics.Repaired("read")
	}
	return healed, nil
}

// JoinedChallenges returns the challenges listed on the user's document,
// public first. Ids that no longer resolve are skipped.
func (s *MembershipService) JoinedChallenges(ctx context.Context, userID string) ([]*model.Challenge, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	ids := append(slices.Clone(user.PublicChallenges), user.JoinedChallenges...)
	ids, _ = dedupe(ids)

	out := make([]*model.Challenge, 0, len(ids))
	for _, id := range ids {
		ch, err := s.store.GetChallenge(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Warn().Str("user_id", userID).Str("challenge_id", id).Msg("User lists a missing challenge")
				continue
			}
			return nil, fmt.Errorf("failed to get challenge: %w", err)
		}
		out = append(out, ch)
	}
	return out, nil
}

func drifted(ch *model.Challenge) bool {
	unique, dup := dedupe(ch.Members)
	return dup || ch.Participants != len(unique)
}

// dedupe drops repeated ids keeping first occurrences in order.
func dedupe(ids []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, len(out) != len(ids)
}

func insert(ids []string, id string) ([]string, bool) {
	if slices.Contains(ids, id) {
		return ids, false
	}
	return append(ids, id), true
}

func remove(ids []string, id string) ([]string, bool) {
	i := slices.Index(ids, id)
	if i < 0 {
		return ids, false
	}
	return slices.Delete(ids, i, i+1), true
}
