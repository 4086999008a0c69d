package oura

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/auth/token"
	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/monitor"
	"github.com/pysugar/oura-twin-sync/internal/util"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultExpiresIn applies when the token endpoint omits expires_in.
const DefaultExpiresIn = 86400

// TokenResult is a successful token endpoint response.
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TwinStatus is the connection state reported for one twin.
type TwinStatus struct {
	Twin      identity.Identity `json:"twin"`
	Label     string            `json:"label"`
	Connected bool              `json:"connected"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Expired   bool              `json:"expired"`
}

// Flow drives authorization, exchange, refresh and disconnect for both twins.
type Flow struct {
	creds      *token.CredentialStore
	tokens     *token.TokenStore
	states     StateIssuer
	endpoints  Endpoints
	httpClient *http.Client
	now        func() time.Time
	log        zerolog.Logger

	refreshMu sync.Mutex
}

// Option configures a Flow.
type Option func(*Flow)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) { f.httpClient = c }
}

// WithClock replaces the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithStateIssuer replaces the default deterministic state codec.
func WithStateIssuer(s StateIssuer) Option {
	return func(f *Flow) { f.states = s }
}

func NewFlow(creds *token.CredentialStore, tokens *token.TokenStore, ep Endpoints, log zerolog.Logger, opts ...Option) *Flow {
	f := &Flow{
		creds:     creds,
		tokens:    tokens,
		states:    DeterministicStates{},
		endpoints: ep,
		now:       time.Now,
		log:       log.With().Str("component", "oauth").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Credentials exposes the credential store backing the flow.
func (f *Flow) Credentials() *token.CredentialStore {
	return f.creds
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// AuthorizationURL builds the consent URL for id. prompt=login forces a fresh upstream
// login so one browser can connect two different accounts.
func (f *Flow) AuthorizationURL(ctx context.Context, id identity.Identity) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("unknown twin %q", id)
	}
	cred := f.creds.Load(ctx)
	if cred.ClientID == "" {
		return "", ErrCredentialsMissing
	}

	state, err := f.states.Issue(ctx, cred.ClientID, id)
	if err != nil {
		return "", err
	}
	return GetOAuthConfig(cred, f.endpoints).AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "login")), nil
}

// ExchangeCode trades an authorization code for tokens. It does not persist anything.
func (f *Flow) ExchangeCode(ctx context.Context, code string) (TokenResult, error) {
	cred := f.creds.Load(ctx)
	if !cred.Configured() {
		return TokenResult{}, ErrCredentialsMissing
	}

	tok, err := GetOAuthConfig(cred, f.endpoints).Exchange(f.clientContext(ctx), code)
	if err != nil {
		err = classifyTokenError(err, ErrTokenExchangeFailed)
		if errors.Is(err, ErrAuthCodeInvalidOrReused) {
			monitor.RecordTokenExchange("invalid_code")
		} else {
			monitor.RecordTokenExchange("error")
		}
		return TokenResult{}, err
	}
	monitor.RecordTokenExchange("ok")
	return resultFromToken(tok), nil
}

// CompleteAuthorization resolves state to a twin, exchanges code and stores the tokens.
func (f *Flow) CompleteAuthorization(ctx context.Context, state, code string) (identity.Identity, error) {
	cred := f.creds.Load(ctx)
	if !cred.Configured() {
		return "", ErrCredentialsMissing
	}

	id, err := f.states.Resolve(ctx, cred.ClientID, state)
	if err != nil {
		return "", err
	}

	res, err := f.ExchangeCode(ctx, code)
	if err != nil {
		return id, err
	}

	if err := f.store(ctx, id, res); err != nil {
		return id, fmt.Errorf("save tokens for %s: %w", id, err)
	}
	f.log.Info().Str("twin", id.String()).Int64("expires_in", res.ExpiresIn).Msg("twin connected")
	return id, nil
}

// Refresh exchanges id's refresh token for a new token set. On any failure it returns false
// and leaves the stored record untouched.
func (f *Flow) Refresh(ctx context.Context, id identity.Identity) bool {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()
	return f.refresh(ctx, id)
}

func (f *Flow) refresh(ctx context.Context, id identity.Identity) bool {
	log := f.log.With().Str("twin", id.String()).Logger()

	rec, _ := f.tokens.Get(ctx, id)
	if rec.RefreshToken == "" {
		log.Debug().Msg("no refresh token stored")
		return false
	}
	cred := f.creds.Load(ctx)
	if !cred.Configured() {
		log.Warn().Err(ErrCredentialsMissing).Msg("cannot refresh")
		return false
	}

	ts := GetOAuthConfig(cred, f.endpoints).TokenSource(f.clientContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		monitor.RecordTokenRefresh(id.String(), false)
		log.Warn().Err(classifyTokenError(err, ErrTokenRefreshFailed)).Msg("refresh failed")
		return false
	}

	if err := f.store(ctx, id, resultFromToken(tok)); err != nil {
		monitor.RecordTokenRefresh(id.String(), false)
		log.Error().Err(err).Msg("save refreshed token")
		return false
	}
	monitor.RecordTokenRefresh(id.String(), true)
	log.Info().Msg("token refreshed")
	return true
}

// IsValid reports whether id holds a usable access token, refreshing it when expired.
// An unparseable expiry counts as valid.
func (f *Flow) IsValid(ctx context.Context, id identity.Identity) bool {
	rec, ok := f.tokens.Get(ctx, id)
	if !ok {
		return false
	}
	if !f.expired(rec, id) {
		return true
	}

	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	rec, ok = f.tokens.Get(ctx, id)
	if !ok {
		return false
	}
	if !f.expired(rec, id) {
		return true
	}
	return f.refresh(ctx, id)
}

func (f *Flow) expired(rec token.Record, id identity.Identity) bool {
	exp, present, err := rec.ExpiresAt()
	if err != nil {
		f.log.Warn().Err(err).Str("twin", id.String()).Msg("unparseable token expiry, treating token as valid")
		return false
	}
	return present && f.now().After(exp)
}

// AccessToken returns a valid access token for id, refreshing first if needed.
func (f *Flow) AccessToken(ctx context.Context, id identity.Identity) (string, bool) {
	if !f.IsValid(ctx, id) {
		return "", false
	}
	rec, ok := f.tokens.Get(ctx, id)
	return rec.AccessToken, ok
}

// Disconnect forgets id's tokens. The other twin is untouched.
func (f *Flow) Disconnect(ctx context.Context, id identity.Identity) error {
	if err := f.tokens.Remove(ctx, id); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	f.log.Info().Str("twin", id.String()).Msg("twin disconnected")
	return nil
}

// Status reports both twins without refreshing anything.
func (f *Flow) Status(ctx context.Context) []TwinStatus {
	out := make([]TwinStatus, 0, 2)
	for _, id := range identity.All() {
		st := TwinStatus{Twin: id, Label: id.Label()}
		rec, ok := f.tokens.Get(ctx, id)
		st.Connected = ok
		if exp, present, err := rec.ExpiresAt(); ok && present && err == nil {
			st.ExpiresAt = &exp
			st.Expired = f.now().After(exp)
		}
		out = append(out, st)
	}
	return out
}

func (f *Flow) store(ctx context.Context, id identity.Identity, res TokenResult) error {
	expiresAt := f.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	return f.tokens.Put(ctx, id, token.Record{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Expiry:       token.FormatExpiry(expiresAt),
	})
}

func resultFromToken(tok *oauth2.Token) TokenResult {
	res := TokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if res.ExpiresIn <= 0 {
		switch v := tok.Extra("expires_in").(type) {
		case float64:
			res.ExpiresIn = int64(v)
		case string:
			res.ExpiresIn, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	if res.ExpiresIn <= 0 {
		res.ExpiresIn = DefaultExpiresIn
	}
	return res
}

// classifyTokenError maps an x/oauth2 error onto the package sentinels.
func classifyTokenError(err error, fallback error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		detail := util.TruncateBytes(re.Body)
		if re.ErrorCode != "" {
			detail = re.ErrorCode
			if re.ErrorDescription != "" {
				detail += ": " + util.TruncateLog(re.ErrorDescription, util.DefaultLogMaxLen)
			}
		}
		sentinel := fallback
		if re.Response.StatusCode == http.StatusBadRequest && fallback == ErrTokenExchangeFailed {
			sentinel = ErrAuthCodeInvalidOrReused
		}
		return &TokenError{StatusCode: re.Response.StatusCode, Detail: detail, Err: sentinel}
	}
	return &TokenError{Detail: err.Error(), Err: fallback}
}
