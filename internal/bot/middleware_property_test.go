package bot

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/config"
)

// TestAdminPermissionCheckProperty checks a user is admin iff their id is configured.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if got, want := cfg.IsAdmin(userID), slices.Contains(adminIDs, userID); got != want {
			t.Fatalf("Admin check mismatch: userID=%d, adminIDs=%v, expected=%v, got=%v",
				userID, adminIDs, want, got)
		}

		known := adminIDs[rapid.IntRange(0, len(adminIDs)-1).Draw(t, "adminIndex")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("Known admin ID %d should be recognized as admin, adminIDs=%v", known, adminIDs)
		}
	})
}

// TestWhitelistEnforcementProperty checks group updates pass iff the chat is whitelisted.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Group chat IDs are negative
		chatIDs := rapid.SliceOfN(rapid.Int64Range(-1000000000, -1), 1, 10).Draw(t, "chatIDs")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chatIDs}}
		seen := newPrivateUsers()

		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		senderID := rapid.Int64Range(1, 1000000000).Draw(t, "senderID")

		want := slices.Contains(chatIDs, chatID)
		if got := seen.Admit(cfg, chatID, tele.ChatGroup, senderID); got != want {
			t.Fatalf("Whitelist check mismatch: chatID=%d, whitelistedChats=%v, expected=%v, got=%v",
				chatID, chatIDs, want, got)
		}

		// A sender admitted in a whitelisted group may use private chat afterwards.
		if got := seen.Admit(cfg, senderID, tele.ChatPrivate, senderID); got != want {
			t.Fatalf("Private chat for sender %d: expected=%v, got=%v", senderID, want, got)
		}
	})
}

// TestEmptyWhitelistAllowsAllChatsProperty checks an empty whitelist admits everything.
func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		seen := newPrivateUsers()

		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		senderID := rapid.Int64Range(1, 1000000000).Draw(t, "senderID")

		if !seen.Admit(cfg, chatID, tele.ChatSuperGroup, senderID) {
			t.Fatalf("With empty whitelist, chat ID %d should be allowed", chatID)
		}
		if !seen.Admit(cfg, senderID, tele.ChatPrivate, rapid.Int64Range(1, 1000000000).Draw(t, "other")) {
			t.Fatalf("With empty whitelist, private chats should be allowed")
		}
	})
}

func TestPrivateChatRequiresGroupContact(t *testing.T) {
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{-100}}}
	seen := newPrivateUsers()

	assert.False(t, seen.Admit(cfg, 7, tele.ChatPrivate, 7))
	assert.False(t, seen.Admit(cfg, -200, tele.ChatGroup, 7))
	assert.False(t, seen.Admit(cfg, 7, tele.ChatPrivate, 7))
	assert.True(t, seen.Admit(cfg, -100, tele.ChatGroup, 7))
	assert.True(t, seen.Admit(cfg, 7, tele.ChatPrivate, 7))
}

func TestIsRewardCallback(t *testing.T) {
	assert.True(t, IsRewardCallback(catalog.CallbackRewardItem+"bottle"))
	assert.True(t, IsRewardCallback("\f"+catalog.CallbackRewardRedeem+"bottle:300:ab12cd"))
	assert.True(t, IsRewardCallback(catalog.CallbackRewardCancel))
	assert.True(t, IsRewardCallback(catalog.CallbackRewardRefresh))
	assert.False(t, IsRewardCallback("challenge_join"))
	assert.False(t, IsRewardCallback(""))
}
