package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/events"
	"fitness-ledger/internal/pkg/metrics"
	"fitness-ledger/internal/store"
)

// AwardRequest credits points for one event. RequestID, when set, makes the
// call idempotent: a repeat returns Duplicate=true and changes nothing.
type AwardRequest struct {
	UserID    string
	Amount    int64
	Reason    catalog.Reason
	RequestID string
}

// AwardResult is the outcome of a committed award.
type AwardResult struct {
	UserID    string
	Amount    int64
	Reason    catalog.Reason
	Balance   int64
	Entry     *model.PointsEntry
	Duplicate bool
}

// RedeemRequest spends PointsCost on a catalog reward. PointsCost is the
// price the caller saw and must still match the catalog.
type RedeemRequest struct {
	UserID     string
	RewardID   string
	PointsCost int64
	RequestID  string
}

// RedeemResult is the outcome of a committed redemption.
type RedeemResult struct {
	UserID     string
	RewardID   string
	PointsCost int64
	Balance    int64
	Redemption *model.Redemption
	Duplicate  bool
}

// RedeemState is the terminal state of a redemption attempt.
type RedeemState string

const (
	StateCommitted RedeemState = "committed"
	StateRejected  RedeemState = "rejected"
	StateFailed    RedeemState = "failed"
)

// RedemptionState maps the error returned by Redeem to its terminal state.
// Failed is the only state worth retrying.
func RedemptionState(err error) RedeemState {
	switch {
	case err == nil:
		return StateCommitted
	case outcomeOf(err) == metrics.OutcomeRejected, IsNotFound(err):
		return StateRejected
	default:
		return StateFailed
	}
}

// AuditReport compares a balance with the history it is derived from.
type AuditReport struct {
	UserID      string
	Balance     int64
	Awarded     int64
	Redeemed    int64
	Entries     int
	Redemptions int
}

// Expected is the balance implied by the history.
func (r *AuditReport) Expected() int64 {
	return r.Awarded - r.Redeemed
}

// Consistent reports whether the balance equals its history.
func (r *AuditReport) Consistent() bool {
	return r.Balance == r.Expected() && r.Balance >= 0
}

// Err returns ErrInvariantViolation when the report is inconsistent.
func (r *AuditReport) Err() error {
	if r.Consistent() {
		return nil
	}
	return fmt.Errorf("%w: user %s balance %d, history implies %d",
		ErrInvariantViolation, r.UserID, r.Balance, r.Expected())
}

// PointsService owns the points balance, its history and redemptions.
type PointsService struct {
	store   store.Store
	events  events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPointsService creates a PointsService.
func NewPointsService(deps Deps) *PointsService {
	deps = deps.withDefaults()
	return &PointsService{
		store:   deps.Store,
		events:  deps.Events,
		metrics: deps.Metrics,
		now:     time.Now,
	}
}

func (s *PointsService) validateAward(req AwardRequest) error {
	if req.UserID == "" {
		return ErrInvalidID
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !req.Reason.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownReason, req.Reason)
	}
	return nil
}

// Award increments the balance and appends the history entry in one transaction.
func (s *PointsService) Award(ctx context.Context, req AwardRequest) (*AwardResult, error) {
	started := time.Now()
	if err := s.validateAward(req); err != nil {
		s.metrics.Observe("award", outcomeOf(err), started)
		return nil, err
	}

	var res *AwardResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = awardTx(ctx, tx, req)
		return err
	})
	if err != nil {
		s.metrics.Observe("award", outcomeOf(err), started)
		log.Error().Err(err).
			Str("user_id", req.UserID).
			Int64("amount", req.Amount).
			Str("reason", string(req.Reason)).
			Str("request_id", req.RequestID).
			Msg("Award failed")
		return nil, fmt.Errorf("failed to award points: %w", err)
	}

	s.awarded(ctx, res, req.RequestID)
	if res.Duplicate {
		s.metrics.Observe("award", metrics.OutcomeNoop, started)
	} else {
		s.metrics.Observe("award", metrics.OutcomeOK, started)
	}
	return res, nil
}

// AwardFor awards the canonical table value for reason.
func (s *PointsService) AwardFor(ctx context.Context, userID string, reason catalog.Reason, requestID string) (*AwardResult, error) {
	cfg, ok := catalog.GetReason(reason)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReason, reason)
	}
	return s.Award(ctx, AwardRequest{
		UserID:    userID,
		Amount:    cfg.Points,
		Reason:    reason,
		RequestID: requestID,
	})
}

// awardTx applies an award inside an open transaction.
func awardTx(ctx context.Context, tx store.Tx, req AwardRequest) (*AwardResult, error) {
	user, err := tx.LockUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	entry := &model.PointsEntry{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reason:    string(req.Reason),
		RequestID: optional(req.RequestID),
	}
	inserted, err := tx.AppendPointsEntry(ctx, entry)
	if err != nil {
		return nil, err
	}

	res := &AwardResult{
		UserID: req.UserID,
		Amount: req.Amount,
		Reason: req.Reason,
	}
	if !inserted {
		res.Balance = user.EarnedPoints
		res.Duplicate = true
		return res, nil
	}

	balance, err := tx.AddPoints(ctx, req.UserID, req.Amount)
	if err != nil {
		return nil, err
	}
	res.Balance = balance
	res.Entry = entry
	return res, nil
}

// awarded runs the post-commit side effects of an award.
func (s *PointsService) awarded(ctx context.Context, res *AwardResult, requestID string) {
	if res.Duplicate {
		log.Debug().Str("user_id", res.UserID).Str("request_id", requestID).Msg("Duplicate award ignored")
		return
	}

	s.metrics.Awarded(res.Amount)
	log.Info().
		Str("user_id", res.UserID).
		Int64("amount", res.Amount).
		Str("reason", string(res.Reason)).
		Int64("balance", res.Balance).
		Msg("Points awarded")

	e := events.New(events.PointsAwarded, res.UserID)
	e.Amount = res.Amount
	e.Reason = string(res.Reason)
	e.Balance = res.Balance
	e.RequestID = requestID
	publish(ctx, s.events, e)
}

// Redeem spends points on a reward. The balance check and the decrement are
// one conditional write in the same transaction as the redemption record.
// Errors: store.ErrNotFound (user or reward), ErrRewardExpired,
// ErrInsufficientBalance, ErrCostMismatch, store.ErrTransient.
func (s *PointsService) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	started := time.Now()
	if req.UserID == "" || req.RewardID == "" {
		s.metrics.Observe("redeem", metrics.OutcomeRejected, started)
		return nil, ErrInvalidID
	}
	if req.PointsCost <= 0 {
		s.metrics.Observe("redeem", metrics.OutcomeRejected, started)
		return nil, ErrInvalidAmount
	}

	now := s.now()
	var res *RedeemResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		reward, err := tx.GetReward(ctx, req.RewardID)
		if err != nil {
			return err
		}
		if reward.ExpiresAt != nil && !now.Before(*reward.ExpiresAt) {
			return ErrRewardExpired
		}

		red := &model.Redemption{
			UserID:     req.UserID,
			RewardID:   req.RewardID,
			PointsCost: req.PointsCost,
			RequestID:  optional(req.RequestID),
		}
		inserted, err := tx.AppendRedemption(ctx, red)
		if err != nil {
			return err
		}
		if !inserted {
			res = &RedeemResult{
				UserID:     req.UserID,
				RewardID:   req.RewardID,
				PointsCost: req.PointsCost,
				Balance:    user.EarnedPoints,
				Duplicate:  true,
			}
			return nil
		}

		balance, ok, err := tx.DeductPoints(ctx, req.UserID, req.PointsCost)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		if req.PointsCost != reward.PointsCost {
			return fmt.Errorf("%w: offered %d, catalog %d", ErrCostMismatch, req.PointsCost, reward.PointsCost)
		}

		res = &RedeemResult{
			UserID:     req.UserID,
			RewardID:   req.RewardID,
			PointsCost: req.PointsCost,
			Balance:    balance,
			Redemption: red,
		}
		return nil
	})

	if err != nil {
		s.metrics.Observe("redeem", outcomeOf(err), started)
		ev := log.Warn()
		if RedemptionState(err) == StateFailed {
			ev = log.Error()
		}
		ev.Err(err).
			Str("user_id", req.UserID).
			Str("reward_id", req.RewardID).
			Int64("amount", req.PointsCost).
			Str("request_id", req.RequestID).
			Msg("Redemption not committed")
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrRewardExpired) || errors.Is(err, ErrCostMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to redeem reward: %w", err)
	}

	if res.Duplicate {
		s.metrics.Observe("redeem", metrics.OutcomeNoop, started)
		return res, nil
	}

	s.metrics.Observe("redeem", metrics.OutcomeOK, started)
	s.metrics.Redeemed(res.PointsCost)
	log.Info().
		Str("user_id", res.UserID).
		Str("reward_id", res.RewardID).
		Int64("amount", res.PointsCost).
		Int64("balance", res.Balance).
		Msg("Reward redeemed")

	e := events.New(events.RewardRedeemed, res.UserID)
	e.RewardID = res.RewardID
	e.Amount = res.PointsCost
	e.Balance = res.Balance
	e.RequestID = req.RequestID
	publish(ctx, s.events, e)
	return res, nil
}

// Balance returns the user's current points.
func (s *PointsService) Balance(ctx context.Context, userID string) (int64, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.EarnedPoints, nil
}

// History returns the newest limit entries; limit <= 0 means all.
func (s *PointsService) History(ctx context.Context, userID string, limit int) ([]*model.PointsEntry, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return s.store.PointsHistory(ctx, userID, limit)
}

// Redemptions returns the user's redemptions, oldest first.
func (s *PointsService) Redemptions(ctx context.Context, userID string) ([]*model.Redemption, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get redemptions: %w", err)
	}
	return s.store.Redemptions(ctx, userID)
}

// Audit recomputes the balance from the history. Reads are not isolated from
// concurrent writers, so audit a user with no mutation in flight.
func (s *PointsService) Audit(ctx context.Context, userID string) (*AuditReport, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to audit: %w", err)
	}
	history, err := s.store.PointsHistory(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to audit: %w", err)
	}
	redemptions, err := s.store.Redemptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to audit: %w", err)
	}

	report := &AuditReport{
		UserID:      userID,
		Balance:     user.EarnedPoints,
		Entries:     len(history),
		Redemptions: len(redemptions),
	}
	for _, e := range history {
		report.Awarded += e.Amount
	}
	for _, r := range redemptions {
		report.Redeemed += r.PointsCost
	}

	if !report.Consistent() {
		s.metrics.Observe("audit", metrics.OutcomeRejected, time.Now())
		log.Warn().Err(report.Err()).Str("user_id", userID).Msg("Balance diverges from history")
	}
	return report, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// publish delivers e and logs, but never returns, a delivery failure.
func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if err := p.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", e.Type).Str("user_id", e.UserID).Msg("Failed to publish ledger event")
	}
}
