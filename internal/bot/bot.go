// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/config"
	"fitness-ledger/internal/handler"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	profileHandler     *handler.ProfileHandler
	pointsHandler      *handler.PointsHandler
	rewardHandler      *handler.RewardHandler
	challengeHandler   *handler.ChallengeHandler
	leaderboardHandler *handler.LeaderboardHandler
	adminHandler       *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Ledger   *service.Ledger
	UserLock *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	userLock := deps.UserLock
	if userLock == nil {
		userLock = lock.NewUserLock()
	}
	l := deps.Ledger

	b := &Bot{
		bot:                teleBot,
		cfg:                deps.Config,
		profileHandler:     handler.NewProfileHandler(l.Profile),
		pointsHandler:      handler.NewPointsHandler(l.Points, userLock),
		rewardHandler:      handler.NewRewardHandler(l.Catalog, l.Points, userLock),
		challengeHandler:   handler.NewChallengeHandler(l.Catalog, l.Membership, userLock),
		leaderboardHandler: handler.NewLeaderboardHandler(l.Leaderboard),
		adminHandler:       handler.NewAdminHandler(l.Points, l.Reconciler, userLock),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.profileHandler.HandleStart)
	b.bot.Handle("/me", b.profileHandler.HandleMe)

	b.bot.Handle("/points", b.pointsHandler.HandlePoints)
	b.bot.Handle("/earn", b.pointsHandler.HandleEarn)
	b.bot.Handle("/history", b.pointsHandler.HandleHistory)
	b.bot.Handle("/log", b.pointsHandler.HandleLog)

	b.bot.Handle("/rewards", b.rewardHandler.HandleRewards)

	b.bot.Handle("/challenges", b.challengeHandler.HandleChallenges)
	b.bot.Handle("/mychallenges", b.challengeHandler.HandleMine)
	b.bot.Handle("/join", b.challengeHandler.HandleJoin)
	b.bot.Handle("/leave", b.challengeHandler.HandleLeave)

	b.bot.Handle("/top", b.leaderboardHandler.HandleTop)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/grant", b.adminHandler.HandleGrant)
	adminGroup.Handle("/audit", b.adminHandler.HandleAudit)
	adminGroup.Handle("/reconcile", b.adminHandler.HandleReconcile)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	log.Debug().Str("data", callback.Data).Msg("Callback received")

	if IsRewardCallback(callback.Data) {
		return b.rewardHandler.HandleCallback(c)
	}
	return c.Respond()
}

// IsRewardCallback reports whether data belongs to the reward panel.
func IsRewardCallback(data string) bool {
	// Telebot v3 may add a \f prefix to callback data
	data = strings.TrimPrefix(data, "\f")
	return strings.HasPrefix(data, catalog.CallbackRewardItem) ||
		strings.HasPrefix(data, catalog.CallbackRewardRedeem) ||
		data == catalog.CallbackRewardCancel ||
		data == catalog.CallbackRewardRefresh
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
