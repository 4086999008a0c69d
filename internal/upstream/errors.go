package upstream

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAPIRateLimited is the upstream's own 429, distinct from the local budget.
	ErrAPIRateLimited = errors.New("oura api rate limited")
	// ErrLocalRateLimitExceeded means the call was skipped by the local limiter.
	ErrLocalRateLimitExceeded = errors.New("local rate limit exceeded")
	// ErrDataAbsent covers 401/403 and every other failed call. Treated as missing data.
	ErrDataAbsent = errors.New("data absent")
	// ErrNotConnected means the twin has no valid token.
	ErrNotConnected = errors.New("twin not connected")
)

// RateLimitError is returned for an upstream 429. It wraps ErrAPIRateLimited.
type RateLimitError struct {
	Source     Source
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v on %s, retry after %s", ErrAPIRateLimited, e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%v on %s", ErrAPIRateLimited, e.Source)
}

func (e *RateLimitError) Unwrap() error {
	return ErrAPIRateLimited
}
