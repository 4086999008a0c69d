package upstream

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter extracts the Retry-After hint from a 429 response.
// Accepts delta-seconds or an HTTP date. Returns 0 if absent or unparseable.
func ParseRetryAfter(resp *http.Response, now time.Time) time.Duration {
	if resp == nil {
		return 0
	}
	retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
