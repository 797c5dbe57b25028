package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
)

// ChallengeHandler handles challenge browsing and membership commands.
type ChallengeHandler struct {
	catalog    *service.CatalogService
	membership *service.MembershipService
	userLock   *lock.UserLock
}

// NewChallengeHandler creates a new ChallengeHandler.
func NewChallengeHandler(catalogService *service.CatalogService, membership *service.MembershipService, userLock *lock.UserLock) *ChallengeHandler {
	return &ChallengeHandler{
		catalog:    catalogService,
		membership: membership,
		userLock:   userLock,
	}
}

// HandleChallenges handles the /challenges command.
// Format: /challenges [public|group]
func (h *ChallengeHandler) HandleChallenges(c tele.Context) error {
	var kind model.ChallengeKind
	if args := c.Args(); len(args) > 0 {
		kind = model.ChallengeKind(strings.ToLower(args[0]))
		if !kind.Valid() {
			return c.Reply("❌ Usage: /challenges [public|group]")
		}
	}

	list, err := h.catalog.Challenges(context.Background(), kind)
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Reply(FormatChallenges("🏁 Challenges", list))
}

// HandleMine handles the /mychallenges command.
func (h *ChallengeHandler) HandleMine(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	list, err := h.membership.JoinedChallenges(context.Background(), LedgerUserID(sender.ID))
	if err != nil {
		return c.Reply(ErrorText(err))
	}
	return c.Reply(FormatChallenges("🚩 Your challenges", list))
}

// HandleJoin handles the /join command.
// Format: /join <challenge id>
func (h *ChallengeHandler) HandleJoin(c tele.Context) error {
	return h.change(c, true)
}

// HandleLeave handles the /leave command.
// Format: /leave <challenge id>
func (h *ChallengeHandler) HandleLeave(c tele.Context) error {
	return h.change(c, false)
}

func (h *ChallengeHandler) change(c tele.Context, join bool) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	cmd := "/leave"
	if join {
		cmd = "/join"
	}
	args := c.Args()
	if len(args) < 1 {
		return c.Reply(fmt.Sprintf("❌ Usage: %s <challenge id>", cmd))
	}
	challengeID := args[0]

	userID := LedgerUserID(sender.ID)
	var res *service.MembershipResult
	err := h.userLock.TryWithLock(userID, func() error {
		var err error
		if join {
			res, err = h.membership.Join(context.Background(), userID, challengeID)
		} else {
			res, err = h.membership.Leave(context.Background(), userID, challengeID)
		}
		return err
	})
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Str("challenge_id", challengeID).Bool("join", join).Msg("Membership change rejected")
		return c.Reply(ErrorText(err))
	}

	return c.Reply(FormatMembership(res))
}

// FormatMembership renders the outcome of a join or leave.
func FormatMembership(res *service.MembershipResult) string {
	var b strings.Builder
	switch {
	case res.Member && res.Changed:
		fmt.Fprintf(&b, "✅ Joined %s", res.ChallengeID)
	case res.Member:
		fmt.Fprintf(&b, "ℹ️ Already in %s", res.ChallengeID)
	case res.Changed:
		fmt.Fprintf(&b, "👋 Left %s", res.ChallengeID)
	default:
		fmt.Fprintf(&b, "ℹ️ Not a member of %s", res.ChallengeID)
	}
	fmt.Fprintf(&b, "\n👥 Participants: %d", res.Participants)
	if res.Award != nil && !res.Award.Duplicate {
		fmt.Fprintf(&b, "\n➕ %d points\n⭐ Points: %d", res.Award.Amount, res.Award.Balance)
	}
	return b.String()
}

// FormatChallenges renders a challenge list under title.
func FormatChallenges(title string, list []*model.Challenge) string {
	if len(list) == 0 {
		return title + "\n━━━━━━━━━━━━━━━\nNothing here yet"
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n━━━━━━━━━━━━━━━\n")
	for _, ch := range list {
		icon := "🚩"
		if ch.Kind == model.ChallengeGroup {
			icon = "👥"
		}
		fmt.Fprintf(&b, "%s %s [%s]\n", icon, ch.Title, ch.ID)
		var meta []string
		switch {
		case ch.Sponsor != "":
			meta = append(meta, "by "+ch.Sponsor)
		case ch.GroupName != "":
			meta = append(meta, ch.GroupName)
		}
		if ch.Duration != "" {
			meta = append(meta, ch.Duration)
		}
		meta = append(meta, fmt.Sprintf("%d joined", ch.Participants))
		fmt.Fprintf(&b, "   %s\n", strings.Join(meta, " · "))
	}
	return strings.TrimRight(b.String(), "\n")
}
