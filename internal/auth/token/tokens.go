package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/store"
	"github.com/rs/zerolog"
)

const (
	suffixToken   = "token"
	suffixRefresh = "refresh_token"
	suffixExpiry  = "token_expiry"
)

// Older files carry a zone-less timestamp.
const naiveExpiryLayout = "2006-01-02T15:04:05.999999999"

// Record is one twin's persisted token set. Expiry is kept as stored so that
// an unparseable value can be told apart from a missing one.
type Record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Expiry       string `json:"expiry,omitempty"`
}

// ExpiresAt parses Expiry. ok is false when no expiry is stored.
func (r Record) ExpiresAt() (t time.Time, ok bool, err error) {
	if r.Expiry == "" {
		return time.Time{}, false, nil
	}
	if t, err = time.Parse(time.RFC3339Nano, r.Expiry); err == nil {
		return t, true, nil
	}
	if t, err = time.ParseInLocation(naiveExpiryLayout, r.Expiry, time.Local); err == nil {
		return t, true, nil
	}
	return time.Time{}, true, fmt.Errorf("parse token expiry %q: %w", r.Expiry, err)
}

// FormatExpiry renders an expiry the way Put stores it.
func FormatExpiry(t time.Time) string {
	return t.Format(time.RFC3339)
}

// Key returns the persisted key for one of id's fields.
func Key(id identity.Identity, suffix string) string {
	return id.KeyPrefix() + suffix
}

// TokenStore reads and writes the tokens document. Every write is a merge.
type TokenStore struct {
	backend store.Backend
	log     zerolog.Logger
}

func NewTokenStore(backend store.Backend, log zerolog.Logger) *TokenStore {
	return &TokenStore{backend: backend, log: log.With().Str("component", "tokens").Logger()}
}

// Save merges partial into the persisted set. Keys not named in partial are kept.
func (s *TokenStore) Save(ctx context.Context, partial map[string]string) error {
	return s.backend.Update(ctx, store.DocTokens, func(doc map[string]string) error {
		for k, v := range partial {
			doc[k] = v
		}
		return nil
	})
}

// Load returns the full persisted mapping. Read errors yield an empty map.
func (s *TokenStore) Load(ctx context.Context) map[string]string {
	doc, err := s.backend.Read(ctx, store.DocTokens)
	if err != nil {
		s.log.Error().Err(err).Msg("load tokens")
		return map[string]string{}
	}
	return doc
}

// Get returns id's record. ok is false when no access token is stored.
func (s *TokenStore) Get(ctx context.Context, id identity.Identity) (Record, bool) {
	doc := s.Load(ctx)
	rec := Record{
		AccessToken:  doc[Key(id, suffixToken)],
		RefreshToken: doc[Key(id, suffixRefresh)],
		Expiry:       doc[Key(id, suffixExpiry)],
	}
	return rec, rec.AccessToken != ""
}

// Put writes id's record in one merge. Empty fields remove the matching key.
func (s *TokenStore) Put(ctx context.Context, id identity.Identity, rec Record) error {
	fields := map[string]string{
		Key(id, suffixToken):   rec.AccessToken,
		Key(id, suffixRefresh): rec.RefreshToken,
		Key(id, suffixExpiry):  rec.Expiry,
	}
	return s.backend.Update(ctx, store.DocTokens, func(doc map[string]string) error {
		for k, v := range fields {
			if v == "" {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
		return nil
	})
}

// Remove deletes every key namespaced to id. The other twin's keys are untouched.
func (s *TokenStore) Remove(ctx context.Context, id identity.Identity) error {
	prefix := id.KeyPrefix()
	return s.backend.Update(ctx, store.DocTokens, func(doc map[string]string) error {
		for k := range doc {
			if strings.HasPrefix(k, prefix) {
				delete(doc, k)
			}
		}
		return nil
	})
}
