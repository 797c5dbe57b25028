// Package service implements the ledger operations on top of the store contract.
package service

import (
	"context"
	"errors"

	"fitness-ledger/internal/pkg/cache"
	"fitness-ledger/internal/pkg/events"
	"fitness-ledger/internal/pkg/metrics"
	"fitness-ledger/internal/store"
)

// Ledger errors. Store errors (store.ErrNotFound, store.ErrTransient) pass
// through wrapped and are matched with errors.Is.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInvalidID           = errors.New("invalid id: must not be empty")
	ErrUnknownReason       = errors.New("unknown points reason")
	ErrCostMismatch        = errors.New("points cost does not match the catalog")
	ErrRewardExpired       = errors.New("reward has expired")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrProfileExists       = errors.New("profile already exists")
)

// IsRetryable reports whether the operation failed on backend unavailability.
// Nothing was committed and it can be resubmitted with the same request id.
func IsRetryable(err error) bool {
	return errors.Is(err, store.ErrTransient)
}

// IsNotFound reports whether a referenced user, challenge or reward is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case IsRetryable(err):
		return metrics.OutcomeTransient
	case IsNotFound(err):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrCostMismatch),
		errors.Is(err, ErrRewardExpired),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrUnknownReason),
		errors.Is(err, ErrProfileExists):
		return metrics.OutcomeRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTransient
	default:
		return metrics.OutcomeError
	}
}

// Deps carries the collaborators shared by the services.
// Nil Cache and Events fall back to no-ops; nil Metrics records nothing.
type Deps struct {
	Store   store.Store
	Cache   cache.MembershipCache
	Events  events.Publisher
	Metrics *metrics.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return d
}
