// Package handler provides Telegram bot command handlers over the ledger services.
package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"fitness-ledger/internal/pkg/lock"
	"fitness-ledger/internal/service"
	"fitness-ledger/internal/store"
)

// userPrefix namespaces Telegram accounts inside the ledger's opaque user ids.
const userPrefix = "tg:"

// requestNamespace derives deterministic request ids from Telegram message coordinates.
var requestNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://t.me/fitness-ledger"))

// LedgerUserID maps a Telegram user id to a ledger user id.
func LedgerUserID(telegramID int64) string {
	return userPrefix + strconv.FormatInt(telegramID, 10)
}

// ParseLedgerUserID accepts either a bare Telegram id or a "tg:" prefixed id.
func ParseLedgerUserID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(s, userPrefix)
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return "", false
	}
	return userPrefix + raw, true
}

// displayName picks the sender's username, falling back to first name.
func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// RequestID derives a stable request id from the parts identifying one
// user action, so a redelivered update maps to the same ledger write.
// Parts are length-prefixed before hashing.
func RequestID(parts ...any) string {
	var b strings.Builder
	for _, p := range parts {
		s := fmt.Sprint(p)
		fmt.Fprintf(&b, "%d:%s;", len(s), s)
	}
	return uuid.NewSHA1(requestNamespace, []byte(b.String())).String()
}

// messageRequestID identifies the command message carried by c.
func messageRequestID(c tele.Context, op string) string {
	msg := c.Message()
	if msg == nil || c.Chat() == nil {
		return ""
	}
	return RequestID(op, c.Chat().ID, msg.ID)
}

// ErrorText renders a ledger error for chat users.
func ErrorText(err error) string {
	switch {
	case errors.Is(err, lock.ErrInFlight):
		return "⏳ Your previous request is still being processed"
	case errors.Is(err, service.ErrInsufficientBalance):
		return "❌ Not enough points"
	case errors.Is(err, service.ErrCostMismatch):
		return "❌ The price of this reward changed, please reopen it"
	case errors.Is(err, service.ErrRewardExpired):
		return "❌ This reward has expired"
	case errors.Is(err, store.ErrUserNotFound):
		return "❌ No profile yet, send /start first"
	case errors.Is(err, store.ErrChallengeNotFound):
		return "❌ Challenge not found"
	case errors.Is(err, store.ErrRewardNotFound):
		return "❌ Reward not found"
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidID),
		errors.Is(err, service.ErrUnknownReason):
		return "❌ Invalid request"
	case service.IsRetryable(err):
		return "⚠️ Service is busy, please try again"
	default:
		return "❌ Something went wrong, please try again later"
	}
}
