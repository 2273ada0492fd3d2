// Package syncx provides a mutex whose acquisition can give up after a
// bounded wait. Diagnostic buffers sit on packet paths, where skipping a
// record is acceptable and blocking is not.
package syncx

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// TimedMutex is a mutual-exclusion lock that supports a bounded wait.
// The zero value is not usable; construct with NewTimedMutex.
type TimedMutex struct {
	sem *semaphore.Weighted
}

// NewTimedMutex returns an unlocked TimedMutex.
func NewTimedMutex() *TimedMutex {
	return &TimedMutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the lock is held.
func (m *TimedMutex) Lock() {
	// Acquire only fails on a done context.
	_ = m.sem.Acquire(context.Background(), 1)
}

// TryLock acquires the lock only if it is free right now.
func (m *TimedMutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// TryLockFor waits at most d for the lock. It reports whether the lock is
// now held. A non-positive d behaves like TryLock.
func (m *TimedMutex) TryLockFor(d time.Duration) bool {
	if m.sem.TryAcquire(1) {
		return true
	}
	if d <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.sem.Acquire(ctx, 1) == nil
}

// Unlock releases the lock. Unlocking an unlocked TimedMutex panics.
func (m *TimedMutex) Unlock() {
	m.sem.Release(1)
}
