package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
)

const historySize = 10

// PointsHandler handles points commands.
type PointsHandler struct {
	points   *service.PointsService
	userLock *lock.UserLock
}

// NewPointsHandler creates a new PointsHandler.
func NewPointsHandler(points *service.PointsService, userLock *lock.UserLock) *PointsHandler {
	return &PointsHandler{points: points, userLock: userLock}
}

// HandlePoints handles the /points command.
func (h *PointsHandler) HandlePoints(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.points.Balance(context.Background(), LedgerUserID(sender.ID))
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Reply(fmt.Sprintf("⭐ Points: %d", balance))
}

// HandleEarn handles the /earn command and lists the points table.
func (h *PointsHandler) HandleEarn(c tele.Context) error {
	return c.Reply(catalog.FormatPointsTable())
}

// HandleHistory handles the /history command.
func (h *PointsHandler) HandleHistory(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	entries, err := h.points.History(context.Background(), LedgerUserID(sender.ID), historySize)
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Reply(FormatHistory(entries))
}

// HandleLog handles the /log command.
// Format: /log <activity>, e.g. /log workout
func (h *PointsHandler) HandleLog(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /log <activity>\n\n" + catalog.FormatPointsTable())
	}
	reason, ok := catalog.ReasonByCommand(strings.ToLower(args[0]))
	if !ok || reason.Reason == catalog.ReasonChallengeJoin {
		return c.Reply("❌ Unknown activity\n\n" + catalog.FormatPointsTable())
	}

	userID := LedgerUserID(sender.ID)
	var res *service.AwardResult
	err := h.userLock.TryWithLock(userID, func() error {
		var err error
		res, err = h.points.AwardFor(context.Background(), userID, reason.Reason, messageRequestID(c, "log"))
		return err
	})
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Str("activity", args[0]).Msg("Log activity rejected")
		return c.Reply(ErrorText(err))
	}

	if res.Duplicate {
		return c.Reply(fmt.Sprintf("ℹ️ Already recorded\n⭐ Points: %d", res.Balance))
	}
	return c.Reply(fmt.Sprintf(
		"%s %s\n"+
			"➕ %d points\n"+
			"⭐ Points: %d",
		reason.Emoji, reason.Name, res.Amount, res.Balance,
	))
}

// FormatHistory renders recent points entries, newest first.
func FormatHistory(entries []*model.PointsEntry) string {
	if len(entries) == 0 {
		return "📜 No points yet. Try /log workout"
	}

	var b strings.Builder
	b.WriteString("📜 Recent points\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	for _, e := range entries {
		name := e.Reason
		if cfg, ok := catalog.GetReason(catalog.Reason(e.Reason)); ok {
			name = cfg.Emoji + " " + cfg.Name
		}
		fmt.Fprintf(&b, "%s  +%d  %s\n", e.CreatedAt.UTC().Format("2006-01-02"), e.Amount, name)
	}
	return strings.TrimRight(b.String(), "\n")
}
