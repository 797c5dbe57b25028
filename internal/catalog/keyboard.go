package catalog

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/model"
)

// Callback data prefixes
const (
	CallbackRewardItem    = "reward_item:"   // reward_item:<reward id>
	CallbackRewardRedeem  = "reward_redeem:" // reward_redeem:<reward id>:<cost>:<nonce>
	CallbackRewardCancel  = "reward_cancel"
	CallbackRewardRefresh = "reward_refresh"
)

// BuildRewardPanel creates the reward catalog panel, one button per reward.
func BuildRewardPanel(rewards []*model.Reward) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var currentRow []tele.Btn
	for i, r := range rewards {
		btn := markup.Data(
			fmt.Sprintf("%s (%d pts)", r.Title, r.PointsCost),
			CallbackRewardItem+r.ID,
		)
		currentRow = append(currentRow, btn)

		if len(currentRow) == 2 || i == len(rewards)-1 {
			rows = append(rows, markup.Row(currentRow...))
			currentRow = nil
		}
	}

	refreshBtn := markup.Data("🔄 Refresh", CallbackRewardRefresh)
	rows = append(rows, markup.Row(refreshBtn))

	markup.Inline(rows...)
	return markup
}

// RedeemCallback is the payload of a confirmation panel's redeem button.
type RedeemCallback struct {
	RewardID string
	Cost     int64
	// Nonce is minted per rendered panel. Taps on one panel share it.
	Nonce string
}

// Data encodes the callback as button data.
func (cb RedeemCallback) Data() string {
	return fmt.Sprintf("%s%s:%d:%s", CallbackRewardRedeem, cb.RewardID, cb.Cost, cb.Nonce)
}

func newNonce() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}

// BuildConfirmPanel creates the redemption confirmation panel. The cost shown
// to the user travels with the callback so a stale price is detected on redeem.
// Every call mints a new nonce.
func BuildConfirmPanel(r *model.Reward) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	cb := RedeemCallback{RewardID: r.ID, Cost: r.PointsCost, Nonce: newNonce()}
	redeemBtn := markup.Data("✅ Redeem", cb.Data())
	cancelBtn := markup.Data("❌ Cancel", CallbackRewardCancel)

	markup.Inline(markup.Row(redeemBtn, cancelBtn))
	return markup
}

// FormatRewardsMessage creates the catalog header message.
func FormatRewardsMessage(balance int64) string {
	var b strings.Builder
	b.WriteString("🎁 Rewards\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "⭐ Your points: %d\n", balance)
	b.WriteString("━━━━━━━━━━━━━━━\n")
	b.WriteString("Tap a reward to see details:")
	return b.String()
}

// FormatRewardDetail creates the reward detail message.
func FormatRewardDetail(r *model.Reward, balance int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 %s", r.Title)
	if r.Brand != "" {
		fmt.Fprintf(&b, " by %s", r.Brand)
	}
	b.WriteString("\n━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "⭐ Cost: %d points\n", r.PointsCost)
	if r.Value != "" {
		fmt.Fprintf(&b, "💎 Value: %s\n", r.Value)
	}
	if r.ExpiresAt != nil {
		fmt.Fprintf(&b, "⏱️ Expires: %s\n", model.Timestamp(*r.ExpiresAt))
	}
	if r.Description != "" {
		fmt.Fprintf(&b, "📝 %s\n", r.Description)
	}
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "⭐ Your points: %d\n", balance)

	if balance < r.PointsCost {
		b.WriteString("❌ Not enough points")
	} else {
		b.WriteString("Redeem this reward?")
	}
	return b.String()
}

// FormatPointsTable lists what each activity is worth.
func FormatPointsTable() string {
	var b strings.Builder
	b.WriteString("⭐ How to earn points\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	for _, r := range GetAllReasons() {
		fmt.Fprintf(&b, "%s %s: +%d\n", r.Emoji, r.Name, r.Points)
	}
	return b.String()
}

// ParseRedeemCallback decodes "reward_redeem:<id>:<cost>:<nonce>" data.
// The reward id may contain ':'.
func ParseRedeemCallback(data string) (RedeemCallback, bool) {
	rest, found := strings.CutPrefix(data, CallbackRewardRedeem)
	if !found {
		return RedeemCallback{}, false
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 || idx == len(rest)-1 {
		return RedeemCallback{}, false
	}
	rest, nonce := rest[:idx], rest[idx+1:]

	idx = strings.LastIndex(rest, ":")
	if idx <= 0 {
		return RedeemCallback{}, false
	}
	cost, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil || cost <= 0 {
		return RedeemCallback{}, false
	}
	return RedeemCallback{RewardID: rest[:idx], Cost: cost, Nonce: nonce}, true
}
