package handler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
	"fitness-ledger/internal/store"
)

func TestLedgerUserID(t *testing.T) {
	assert.Equal(t, "tg:42", LedgerUserID(42))

	id, ok := ParseLedgerUserID("42")
	require.True(t, ok)
	assert.Equal(t, "tg:42", id)

	id, ok = ParseLedgerUserID("tg:42")
	require.True(t, ok)
	assert.Equal(t, "tg:42", id)

	_, ok = ParseLedgerUserID("alice")
	assert.False(t, ok)
}

func TestRequestID_Deterministic(t *testing.T) {
	a := RequestID("redeem", int64(-100), 7, "bottle")
	b := RequestID("redeem", int64(-100), 7, "bottle")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, RequestID("redeem", int64(-100), 8, "bottle"))
	assert.NotEqual(t, a, RequestID("log", int64(-100), 7, "bottle"))
	assert.NotEqual(t, RequestID("a:b", "c"), RequestID("a", "b:c"))
	assert.Len(t, a, 36)
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("redeem: %w", service.ErrInsufficientBalance), "❌ Not enough points"},
		{service.ErrCostMismatch, "❌ The price of this reward changed, please reopen it"},
		{service.ErrRewardExpired, "❌ This reward has expired"},
		{store.ErrUserNotFound, "❌ No profile yet, send /start first"},
		{store.ErrChallengeNotFound, "❌ Challenge not found"},
		{store.ErrRewardNotFound, "❌ Reward not found"},
		{service.ErrInvalidAmount, "❌ Invalid request"},
		{lock.ErrInFlight, "⏳ Your previous request is still being processed"},
		{fmt.Errorf("commit: %w", store.ErrTransient), "⚠️ Service is busy, please try again"},
		{errors.New("boom"), "❌ Something went wrong, please try again later"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorText(tt.err), tt.err.Error())
	}
}

func TestParseGrantArgs(t *testing.T) {
	req, err := ParseGrantArgs([]string{"123", "200"})
	require.NoError(t, err)
	assert.Equal(t, "tg:123", req.UserID)
	assert.Equal(t, int64(200), req.Amount)
	assert.Equal(t, catalog.ReasonMilestoneAchievement, req.Reason)

	req, err = ParseGrantArgs([]string{"123", "50", "workout"})
	require.NoError(t, err)
	assert.Equal(t, catalog.ReasonWorkoutCompletion, req.Reason)

	req, err = ParseGrantArgs([]string{"123", "50", "daily_streak"})
	require.NoError(t, err)
	assert.Equal(t, catalog.ReasonDailyStreak, req.Reason)

	for _, args := range [][]string{
		{"123"},
		{"bob", "10"},
		{"123", "-5"},
		{"123", "ten"},
		{"123", "10", "napping"},
	} {
		_, err := ParseGrantArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestFormatMembership(t *testing.T) {
	joined := FormatMembership(&service.MembershipResult{
		ChallengeID:  "steps",
		Member:       true,
		Changed:      true,
		Participants: 3,
		Award:        &service.AwardResult{Amount: 100, Balance: 150},
	})
	assert.Contains(t, joined, "✅ Joined steps")
	assert.Contains(t, joined, "👥 Participants: 3")
	assert.Contains(t, joined, "➕ 100 points")

	again := FormatMembership(&service.MembershipResult{ChallengeID: "steps", Member: true, Participants: 3})
	assert.Contains(t, again, "Already in steps")

	left := FormatMembership(&service.MembershipResult{ChallengeID: "steps", Changed: true, Participants: 2})
	assert.Contains(t, left, "Left steps")

	noop := FormatMembership(&service.MembershipResult{ChallengeID: "steps"})
	assert.Contains(t, noop, "Not a member of steps")
}

func TestFormatChallenges(t *testing.T) {
	assert.Contains(t, FormatChallenges("Title", nil), "Nothing here yet")

	out := FormatChallenges("Title", []*model.Challenge{
		{ID: "p1", Kind: model.ChallengePublic, Title: "10K Steps", Sponsor: "Nike", Duration: "30 days", Participants: 4},
		{ID: "g1", Kind: model.ChallengeGroup, Title: "Showdown", GroupName: "Office", Participants: 2},
	})
	assert.Contains(t, out, "🚩 10K Steps [p1]")
	assert.Contains(t, out, "by Nike · 30 days · 4 joined")
	assert.Contains(t, out, "👥 Showdown [g1]")
	assert.Contains(t, out, "Office · 2 joined")
}

func TestFormatHistoryAndLeaderboard(t *testing.T) {
	assert.Contains(t, FormatHistory(nil), "No points yet")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := FormatHistory([]*model.PointsEntry{
		{Amount: 50, Reason: string(catalog.ReasonWorkoutCompletion), CreatedAt: at},
		{Amount: 7, Reason: "LEGACY", CreatedAt: at},
	})
	assert.Contains(t, out, "2026-03-01  +50  🏋️ Workout completed")
	assert.Contains(t, out, "+7  LEGACY")

	board := FormatLeaderboard([]*model.RankedUser{
		{UserID: "tg:1", DisplayName: "ada", EarnedPoints: 300},
		{UserID: "tg:2", EarnedPoints: 200},
		{UserID: "tg:3", DisplayName: "cy", EarnedPoints: 100},
		{UserID: "tg:4", DisplayName: "di", EarnedPoints: 50},
	})
	assert.Contains(t, board, "🥇 ada: 300")
	assert.Contains(t, board, "🥈 tg:2: 200")
	assert.Contains(t, board, "4. di: 50")
	assert.Contains(t, FormatLeaderboard(nil), "No data yet")
}
