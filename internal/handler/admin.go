package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
)

// AdminHandler handles admin commands.
type AdminHandler struct {
	points     *service.PointsService
	reconciler *service.Reconciler
	userLock   *lock.UserLock
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(points *service.PointsService, reconciler *service.Reconciler, userLock *lock.UserLock) *AdminHandler {
	return &AdminHandler{
		points:     points,
		reconciler: reconciler,
		userLock:   userLock,
	}
}

// HandleGrant handles the /grant command.
// Format: /grant <user_id> <amount> [reason]
func (h *AdminHandler) HandleGrant(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	req, err := ParseGrantArgs(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	req.RequestID = messageRequestID(c, "grant")

	var res *service.AwardResult
	err = h.userLock.WithLock(req.UserID, func() error {
		var err error
		res, err = h.points.Award(context.Background(), req)
		return err
	})
	if err != nil {
		return c.Reply(ErrorText(err))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("target_id", req.UserID).
		Int64("amount", req.Amount).
		Str("reason", string(req.Reason)).
		Str("operation", "grant").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ Granted\n\n"+
			"👤 User: %s\n"+
			"➕ %d points (%s)\n"+
			"⭐ Points: %d",
		req.UserID, res.Amount, res.Reason, res.Balance,
	))
}

// ParseGrantArgs parses "<user_id> <amount> [reason]". The reason defaults
// to a milestone and accepts either the reason code or its keyword.
func ParseGrantArgs(args []string) (service.AwardRequest, error) {
	usage := errors.New("❌ Usage: /grant <user_id> <amount> [reason]\nExample: /grant 123456789 200 milestone")
	if len(args) < 2 {
		return service.AwardRequest{}, usage
	}

	userID, ok := ParseLedgerUserID(args[0])
	if !ok {
		return service.AwardRequest{}, errors.New("❌ user_id must be a number")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		return service.AwardRequest{}, errors.New("❌ amount must be a positive integer")
	}

	reason := catalog.ReasonMilestoneAchievement
	if len(args) > 2 {
		r := catalog.Reason(strings.ToUpper(args[2]))
		if cfg, ok := catalog.ReasonByCommand(strings.ToLower(args[2])); ok {
			r = cfg.Reason
		}
		if !r.Valid() {
			return service.AwardRequest{}, fmt.Errorf("❌ unknown reason %q", args[2])
		}
		reason = r
	}

	return service.AwardRequest{UserID: userID, Amount: amount, Reason: reason}, nil
}

// HandleAudit handles the /audit command.
// Format: /audit <user_id>
func (h *AdminHandler) HandleAudit(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /audit <user_id>")
	}
	userID, ok := ParseLedgerUserID(args[0])
	if !ok {
		return c.Reply("❌ user_id must be a number")
	}

	report, err := h.points.Audit(context.Background(), userID)
	if err != nil {
		return c.Reply(ErrorText(err))
	}

	status := "✅ consistent"
	if !report.Consistent() {
		status = "❌ inconsistent"
	}
	return c.Reply(fmt.Sprintf(
		"🔎 Audit %s\n"+
			"━━━━━━━━━━━━━━━\n"+
			"⭐ Balance: %d\n"+
			"➕ Awarded: %d (%d entries)\n"+
			"➖ Redeemed: %d (%d redemptions)\n"+
			"%s",
		userID, report.Balance, report.Awarded, report.Entries,
		report.Redeemed, report.Redemptions, status,
	))
}

// HandleReconcile handles the /reconcile command.
// Format: /reconcile [challenge id]
func (h *AdminHandler) HandleReconcile(c tele.Context) error {
	ctx := context.Background()

	if args := c.Args(); len(args) > 0 {
		repaired, err := h.reconciler.ReconcileChallenge(ctx, args[0])
		if err != nil {
			return c.Reply(ErrorText(err))
		}
		if repaired {
			return c.Reply(fmt.Sprintf("🛠️ %s repaired", args[0]))
		}
		return c.Reply(fmt.Sprintf("✅ %s is consistent", args[0]))
	}

	report, err := h.reconciler.ReconcileAll(ctx)
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Reply(fmt.Sprintf(
		"🛠️ Reconciliation\n"+
			"━━━━━━━━━━━━━━━\n"+
			"Checked: %d\n"+
			"Repaired: %d\n"+
			"Failed: %d",
		report.Checked, len(report.Repaired), len(report.Failed),
	))
}
