package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/service"
)

// ProfileHandler handles profile commands.
type ProfileHandler struct {
	profile *service.ProfileService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profile *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profile: profile}
}

// HandleStart handles the /start command.
// Creates an empty profile on first contact.
func (h *ProfileHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := displayName(sender)
	user, created, err := h.profile.EnsureUser(ctx, LedgerUserID(sender.ID), name)
	if err != nil {
		log.Error().Err(err).Int64("telegram_id", sender.ID).Msg("Failed to ensure user")
		return c.Reply(ErrorText(err))
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome @%s!\n\n"+
				"Your profile is ready. Earn points by staying active and redeem them for rewards.\n\n"+
				"%s\n"+
				"Commands:\n"+
				"/points - your balance\n"+
				"/log <activity> - record an activity\n"+
				"/challenges - browse challenges\n"+
				"/join <id> - join a challenge\n"+
				"/rewards - redeem points\n"+
				"/top - leaderboard",
			name, catalog.FormatPointsTable(),
		))
	}

	return c.Reply(fmt.Sprintf(
		"👋 Welcome back @%s!\n\n"+
			"⭐ Points: %d",
		name, user.EarnedPoints,
	))
}

// HandleMe handles the /me command.
func (h *ProfileHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.profile.GetProfile(ctx, LedgerUserID(sender.ID))
	if err != nil {
		return c.Reply(ErrorText(err))
	}

	var b strings.Builder
	b.WriteString("📊 Profile\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "👤 %s\n", user.DisplayName)
	fmt.Fprintf(&b, "⭐ Points: %d\n", user.EarnedPoints)
	fmt.Fprintf(&b, "🔥 Streak: %d\n", user.Streak)
	fmt.Fprintf(&b, "🚩 Public challenges: %d\n", len(user.PublicChallenges))
	fmt.Fprintf(&b, "👥 Group challenges: %d\n", len(user.JoinedChallenges))
	b.WriteString("━━━━━━━━━━━━━━━")
	return c.Reply(b.String())
}
