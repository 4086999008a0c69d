// Package ratelimit provides the fixed-window request budget shared by all outbound API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outbound calls. CheckAndConsume never blocks or queues: it either takes one
// unit of budget and returns true, or rejects immediately.
type Limiter interface {
	CheckAndConsume(ctx context.Context) bool
	Status(ctx context.Context) Status
}

// Status is a point-in-time view of the current window.
type Status struct {
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

// FixedWindow is the in-process limiter. The budget resets entirely once the window elapses.
type FixedWindow struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// NewFixedWindow creates a limiter allowing capacity calls per window.
func NewFixedWindow(capacity int, window time.Duration) *FixedWindow {
	return &FixedWindow{capacity: capacity, window: window, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	l.now = now
	return l
}

func (l *FixedWindow) CheckAndConsume(_ context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.resetAt.IsZero() || now.After(l.resetAt) {
		l.count = 0
		l.resetAt = now.Add(l.window)
	}
	if l.count >= l.capacity {
		return false
	}
	l.count++
	return true
}

func (l *FixedWindow) Status(_ context.Context) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.resetAt.IsZero() && l.now().After(l.resetAt) {
		return Status{Capacity: l.capacity, Remaining: l.capacity}
	}
	return Status{Capacity: l.capacity, Remaining: l.capacity - l.count, ResetAt: l.resetAt}
}

// Count returns the number of calls consumed in the current window.
func (l *FixedWindow) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Remaining returns the unused budget of the current window.
func (l *FixedWindow) Remaining() int {
	return l.Status(context.Background()).Remaining
}

// ResetAt returns the end of the current window, zero before the first call.
func (l *FixedWindow) ResetAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetAt
}
