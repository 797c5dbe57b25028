// Package lock provides per-user in-flight guards for ledger mutations.
// A presentation surface holds the guard for the duration of a request so a
// double submission from the same user is turned away instead of queued.
package lock

import (
	"context"
	"sync"
	"time"
)

// userMutex wraps a mutex with reference counting for cleanup.
type userMutex struct {
	mu       sync.Mutex
	refCount int
}

// UserLock provides per-user locking keyed by the identity provider's user id.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*userMutex)}
}

// acquire returns the mutex for userID with its reference count bumped.
func (ul *UserLock) acquire(userID string) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{}
		ul.locks[userID] = m
	}
	m.refCount++
	return m
}

// release drops a reference and forgets the mutex when nobody holds or waits on it.
func (ul *UserLock) release(userID string, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m.refCount--
	if m.refCount == 0 {
		delete(ul.locks, userID)
	}
}

// Lock blocks until the user's guard is held.
func (ul *UserLock) Lock(userID string) {
	m := ul.acquire(userID)
	m.mu.Lock()
}

// Unlock releases the user's guard.
func (ul *UserLock) Unlock(userID string) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	m.mu.Unlock()
	ul.release(userID, m)
}

// TryLock acquires the guard only if no request for the user is in flight.
func (ul *UserLock) TryLock(userID string) bool {
	m := ul.acquire(userID)
	if m.mu.TryLock() {
		return true
	}
	ul.release(userID, m)
	return false
}

// LockWithTimeout waits up to timeout for the guard.
// Returns false if the timeout or ctx expired first.
func (ul *UserLock) LockWithTimeout(ctx context.Context, userID string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Poll instead of parking a goroutine on the mutex, so a timed-out
	// caller leaves nothing behind that could acquire the lock later.
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if ul.TryLock(userID) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// WithLock executes fn while holding the user's guard.
func (ul *UserLock) WithLock(userID string, fn func() error) error {
	ul.Lock(userID)
	defer ul.Unlock(userID)
	return fn()
}

// WithLockContext executes fn while holding the user's guard, waiting at most timeout.
func (ul *UserLock) WithLockContext(ctx context.Context, userID string, timeout time.Duration, fn func() error) error {
	if !ul.LockWithTimeout(ctx, userID, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer ul.Unlock(userID)
	return fn()
}

// TryWithLock executes fn only if the guard is free; otherwise returns ErrInFlight.
func (ul *UserLock) TryWithLock(userID string, fn func() error) error {
	if !ul.TryLock(userID) {
		return ErrInFlight
	}
	defer ul.Unlock(userID)
	return fn()
}

// IsLocked checks if a user currently has a request in flight.
// Note: This is a point-in-time check and may change immediately after.
func (ul *UserLock) IsLocked(userID string) bool {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return false
	}
	if m.mu.TryLock() {
		m.mu.Unlock()
		return false
	}
	return true
}

// Size returns the number of users with a held or awaited guard.
func (ul *UserLock) Size() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
