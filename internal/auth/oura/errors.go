package oura

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthCodeInvalidOrReused means the token endpoint answered 400. Browser reloads
	// resubmit a used code; the fix is to start the login again.
	ErrAuthCodeInvalidOrReused = errors.New("authorization code invalid or already used")
	ErrTokenExchangeFailed     = errors.New("token exchange failed")
	ErrTokenRefreshFailed      = errors.New("token refresh failed")
	ErrInvalidState            = errors.New("invalid oauth state")
	ErrCredentialsMissing      = errors.New("oauth client credentials not configured")
)

// TokenError carries the token endpoint's status and body. StatusCode is 0 for transport errors.
type TokenError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}
	return fmt.Sprintf("%v: HTTP %d: %s", e.Err, e.StatusCode, e.Detail)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}
