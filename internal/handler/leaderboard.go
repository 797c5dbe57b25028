package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/service"
)

// LeaderboardHandler handles the points leaderboard.
type LeaderboardHandler struct {
	leaderboard *service.LeaderboardService
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(leaderboard *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard}
}

// HandleTop handles the /top command.
// Format: /top [n]
func (h *LeaderboardHandler) HandleTop(c tele.Context) error {
	limit := service.DefaultLeaderboardSize
	if args := c.Args(); len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	top, err := h.leaderboard.Top(context.Background(), limit)
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Reply(FormatLeaderboard(top))
}

// FormatLeaderboard renders ranked users with medals for the top three.
func FormatLeaderboard(top []*model.RankedUser) string {
	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	if len(top) == 0 {
		b.WriteString("No data yet")
		return b.String()
	}

	medals := []string{"🥇", "🥈", "🥉"}
	for i, u := range top {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := u.DisplayName
		if name == "" {
			name = u.UserID
		}
		fmt.Fprintf(&b, "%s %s: %d\n", rank, name, u.EarnedPoints)
	}
	return strings.TrimRight(b.String(), "\n")
}
