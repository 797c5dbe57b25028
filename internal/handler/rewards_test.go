package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
	"fitness-ledger/internal/store/memory"
)

// callbackContext is a tele.Context carrying one button tap. Methods the
// reward handler does not use are left to the nil embedded interface.
type callbackContext struct {
	tele.Context
	sender    *tele.User
	callback  *tele.Callback
	edits     []*tele.ReplyMarkup
	responses []string
}

func (c *callbackContext) Sender() *tele.User       { return c.sender }
func (c *callbackContext) Callback() *tele.Callback { return c.callback }
func (c *callbackContext) Message() *tele.Message   { return nil }
func (c *callbackContext) Chat() *tele.Chat         { return nil }

func (c *callbackContext) Respond(resp ...*tele.CallbackResponse) error {
	for _, r := range resp {
		c.responses = append(c.responses, r.Text)
	}
	return nil
}

func (c *callbackContext) Edit(what interface{}, opts ...interface{}) error {
	for _, opt := range opts {
		if m, ok := opt.(*tele.ReplyMarkup); ok {
			c.edits = append(c.edits, m)
		}
	}
	return nil
}

type rewardEnv struct {
	ledger  *service.Ledger
	handler *RewardHandler
}

func newRewardEnv(t *testing.T, users ...int64) *rewardEnv {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	ledger := service.NewLedger(service.Deps{Store: s}, false)

	require.NoError(t, s.UpsertReward(ctx, &model.Reward{ID: "bottle", Title: "Bottle", PointsCost: 80, Type: model.RewardProduct}))
	for _, id := range users {
		_, _, err := ledger.Profile.EnsureUser(ctx, LedgerUserID(id), "user")
		require.NoError(t, err)
		_, err = ledger.Points.Award(ctx, service.AwardRequest{
			UserID: LedgerUserID(id),
			Amount: 200,
			Reason: catalog.ReasonMilestoneAchievement,
		})
		require.NoError(t, err)
	}

	return &rewardEnv{
		ledger:  ledger,
		handler: NewRewardHandler(ledger.Catalog, ledger.Points, lock.NewUserLock()),
	}
}

func (e *rewardEnv) tap(t *testing.T, telegramID int64, data string) *callbackContext {
	t.Helper()
	c := &callbackContext{
		sender:   &tele.User{ID: telegramID},
		callback: &tele.Callback{Data: "\f" + data},
	}
	require.NoError(t, e.handler.HandleCallback(c))
	return c
}

// openConfirm taps a reward in the catalog and returns the redeem button data.
func (e *rewardEnv) openConfirm(t *testing.T, telegramID int64) string {
	t.Helper()
	c := e.tap(t, telegramID, catalog.CallbackRewardItem+"bottle")
	require.Len(t, c.edits, 1)
	btn := c.edits[0].InlineKeyboard[0][0]
	if btn.Unique != "" {
		return btn.Unique
	}
	return btn.Data
}

func (e *rewardEnv) balance(t *testing.T, telegramID int64) int64 {
	t.Helper()
	b, err := e.ledger.Points.Balance(context.Background(), LedgerUserID(telegramID))
	require.NoError(t, err)
	return b
}

func (e *rewardEnv) redemptions(t *testing.T, telegramID int64) int {
	t.Helper()
	r, err := e.ledger.Points.Redemptions(context.Background(), LedgerUserID(telegramID))
	require.NoError(t, err)
	return len(r)
}

func TestRewardCallback_DoubleTapRedeemsOnce(t *testing.T) {
	env := newRewardEnv(t, 1)
	data := env.openConfirm(t, 1)

	first := env.tap(t, 1, data)
	second := env.tap(t, 1, data)

	assert.Equal(t, []string{"✅ Redeemed!"}, first.responses)
	assert.Equal(t, []string{"ℹ️ Already redeemed"}, second.responses)
	assert.Equal(t, int64(120), env.balance(t, 1))
	assert.Equal(t, 1, env.redemptions(t, 1))
}

func TestRewardCallback_FreshPanelRedeemsAgain(t *testing.T) {
	env := newRewardEnv(t, 1)

	first := env.openConfirm(t, 1)
	env.tap(t, 1, first)
	second := env.openConfirm(t, 1)
	require.NotEqual(t, first, second)

	c := env.tap(t, 1, second)
	assert.Equal(t, []string{"✅ Redeemed!"}, c.responses)
	assert.Equal(t, int64(40), env.balance(t, 1))
	assert.Equal(t, 2, env.redemptions(t, 1))
}

func TestRewardCallback_SharedPanelChargesEachUser(t *testing.T) {
	env := newRewardEnv(t, 1, 2)
	data := env.openConfirm(t, 1)

	env.tap(t, 1, data)
	c := env.tap(t, 2, data)

	assert.Equal(t, []string{"✅ Redeemed!"}, c.responses)
	assert.Equal(t, int64(120), env.balance(t, 1))
	assert.Equal(t, int64(120), env.balance(t, 2))
	assert.Equal(t, 1, env.redemptions(t, 2))
}

func TestRewardCallback_InvalidData(t *testing.T) {
	env := newRewardEnv(t, 1)

	c := env.tap(t, 1, catalog.CallbackRewardRedeem+"bottle:80")
	assert.Equal(t, []string{"❌ Invalid request"}, c.responses)
	assert.Equal(t, int64(200), env.balance(t, 1))
}

func TestRedeemRequestID(t *testing.T) {
	cb := catalog.RedeemCallback{RewardID: "bottle", Cost: 80, Nonce: "n1"}

	assert.Equal(t, redeemRequestID(1, cb), redeemRequestID(1, cb))
	assert.NotEqual(t, redeemRequestID(1, cb), redeemRequestID(2, cb))

	other := cb
	other.Nonce = "n2"
	assert.NotEqual(t, redeemRequestID(1, cb), redeemRequestID(1, other))
}
