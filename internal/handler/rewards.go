package handler

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
)

// RewardHandler handles the reward catalog and redemptions.
type RewardHandler struct {
	catalog  *service.CatalogService
	points   *service.PointsService
	userLock *lock.UserLock
}

// NewRewardHandler creates a new RewardHandler.
func NewRewardHandler(catalogService *service.CatalogService, points *service.PointsService, userLock *lock.UserLock) *RewardHandler {
	return &RewardHandler{
		catalog:  catalogService,
		points:   points,
		userLock: userLock,
	}
}

// HandleRewards handles the /rewards command and sends the catalog panel.
func (h *RewardHandler) HandleRewards(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	msg, markup, err := h.panel(context.Background(), sender.ID)
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Send(msg, markup)
}

func (h *RewardHandler) panel(ctx context.Context, telegramID int64) (string, *tele.ReplyMarkup, error) {
	balance, err := h.points.Balance(ctx, LedgerUserID(telegramID))
	if err != nil {
		return "", nil, err
	}
	rewards, err := h.catalog.Rewards(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(rewards) == 0 {
		return "🎁 No rewards available right now", catalog.BuildRewardPanel(nil), nil
	}
	return catalog.FormatRewardsMessage(balance), catalog.BuildRewardPanel(rewards), nil
}

// HandleCallback handles reward panel button callbacks.
func (h *RewardHandler) HandleCallback(c tele.Context) error {
	ctx := context.Background()
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	data := strings.TrimPrefix(callback.Data, "\f")

	switch {
	case data == catalog.CallbackRewardRefresh, data == catalog.CallbackRewardCancel:
		msg, markup, err := h.panel(ctx, sender.ID)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: ErrorText(err), ShowAlert: true})
		}
		return c.Edit(msg, markup)

	case strings.HasPrefix(data, catalog.CallbackRewardItem):
		rewardID := strings.TrimPrefix(data, catalog.CallbackRewardItem)
		reward, err := h.catalog.Reward(ctx, rewardID)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: ErrorText(err)})
		}
		balance, _ := h.points.Balance(ctx, LedgerUserID(sender.ID))
		return c.Edit(catalog.FormatRewardDetail(reward, balance), catalog.BuildConfirmPanel(reward))

	case strings.HasPrefix(data, catalog.CallbackRewardRedeem):
		return h.redeem(ctx, c, data)
	}

	return nil
}

// redeemRequestID identifies one tap target: the user and the rendered
// confirmation panel. Repeated taps on one panel redeem once, and a freshly
// opened panel is a new redemption.
func redeemRequestID(telegramID int64, cb catalog.RedeemCallback) string {
	return RequestID("redeem", telegramID, cb.RewardID, cb.Nonce)
}

// redeem charges the cost shown on the confirmation panel.
func (h *RewardHandler) redeem(ctx context.Context, c tele.Context, data string) error {
	sender := c.Sender()
	cb, ok := catalog.ParseRedeemCallback(data)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid request", ShowAlert: true})
	}
	rewardID := cb.RewardID
	requestID := redeemRequestID(sender.ID, cb)

	userID := LedgerUserID(sender.ID)
	var res *service.RedeemResult
	err := h.userLock.TryWithLock(userID, func() error {
		var err error
		res, err = h.points.Redeem(ctx, service.RedeemRequest{
			UserID:     userID,
			RewardID:   rewardID,
			PointsCost: cb.Cost,
			RequestID:  requestID,
		})
		return err
	})
	if err != nil {
		if service.RedemptionState(err) == service.StateFailed {
			log.Error().Err(err).Str("user_id", userID).Str("reward_id", rewardID).Msg("Redeem failed")
		}
		return c.Respond(&tele.CallbackResponse{Text: ErrorText(err), ShowAlert: true})
	}

	text := "✅ Redeemed!"
	if res.Duplicate {
		text = "ℹ️ Already redeemed"
	}
	_ = c.Respond(&tele.CallbackResponse{Text: text})

	msg, markup, err := h.panel(ctx, sender.ID)
	if err != nil {
		return nil
	}
	return c.Edit(msg, markup)
}
