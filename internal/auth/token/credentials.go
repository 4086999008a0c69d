// Package token persists the OAuth client registration and the per-twin token records.
package token

import (
	"context"
	"strings"

	"github.com/pysugar/oura-twin-sync/internal/store"
	"github.com/rs/zerolog"
)

const (
	keyClientID     = "client_id"
	keyClientSecret = "client_secret"
	keyRedirectURI  = "redirect_uri"
)

// Credential is the single OAuth client registration shared by both twins.
type Credential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

// Configured reports whether both client id and secret are present.
func (c Credential) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// CredentialStore reads and writes the credentials document.
type CredentialStore struct {
	backend         store.Backend
	defaultRedirect string
	override        Credential
	log             zerolog.Logger
}

// NewCredentialStore creates a store. defaultRedirect fills in a missing redirect URI on Load.
func NewCredentialStore(backend store.Backend, defaultRedirect string, log zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		backend:         backend,
		defaultRedirect: defaultRedirect,
		log:             log.With().Str("component", "credentials").Logger(),
	}
}

// OverrideCredentials sets deployment-level values that win over the saved ones field by field.
func (s *CredentialStore) OverrideCredentials(c Credential) {
	s.override = Credential{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		RedirectURI:  strings.TrimSpace(c.RedirectURI),
	}
}

// Save replaces any previously saved credential.
func (s *CredentialStore) Save(ctx context.Context, c Credential) error {
	return s.backend.Update(ctx, store.DocCredentials, func(doc map[string]string) error {
		for k := range doc {
			delete(doc, k)
		}
		doc[keyClientID] = strings.TrimSpace(c.ClientID)
		doc[keyClientSecret] = strings.TrimSpace(c.ClientSecret)
		doc[keyRedirectURI] = strings.TrimSpace(c.RedirectURI)
		return nil
	})
}

// Load returns the effective credential. Absence or a read error yields empty fields.
func (s *CredentialStore) Load(ctx context.Context) Credential {
	doc, err := s.backend.Read(ctx, store.DocCredentials)
	if err != nil {
		s.log.Error().Err(err).Msg("load credentials")
		doc = map[string]string{}
	}

	c := Credential{
		ClientID:     doc[keyClientID],
		ClientSecret: doc[keyClientSecret],
		RedirectURI:  doc[keyRedirectURI],
	}
	if s.override.ClientID != "" {
		c.ClientID = s.override.ClientID
	}
	if s.override.ClientSecret != "" {
		c.ClientSecret = s.override.ClientSecret
	}
	if s.override.RedirectURI != "" {
		c.RedirectURI = s.override.RedirectURI
	}
	if c.RedirectURI == "" {
		c.RedirectURI = s.defaultRedirect
	}
	return c
}

// Clear removes the saved credential. Deployment overrides are not affected.
func (s *CredentialStore) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, store.DocCredentials)
}

// IsConfigured reports whether an effective client id and secret exist.
func (s *CredentialStore) IsConfigured(ctx context.Context) bool {
	return s.Load(ctx).Configured()
}
