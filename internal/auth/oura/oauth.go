// Package oura implements the OAuth2 client lifecycle against the Oura cloud for both twins.
package oura

import (
	"strings"

	"github.com/pysugar/oura-twin-sync/internal/auth/token"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://cloud.ouraring.com/oauth/authorize"
	DefaultTokenURL = "https://api.ouraring.com/oauth/token"
)

// DefaultScopes grants access to profile, daily summaries, heart rate and SpO2.
var DefaultScopes = []string{"email", "personal", "daily", "heartrate", "spo2"}

// Endpoints locates the authorization server.
type Endpoints struct {
	AuthURL  string
	TokenURL string
	Scopes   []string
}

// DefaultEndpoints returns the production Oura endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{AuthURL: DefaultAuthURL, TokenURL: DefaultTokenURL, Scopes: DefaultScopes}
}

// GetOAuthConfig returns the OAuth2 config for the given client registration.
// Oura expects client credentials in the form body.
func GetOAuthConfig(cred token.Credential, ep Endpoints) *oauth2.Config {
	scopes := ep.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(cred.ClientID),
		ClientSecret: strings.TrimSpace(cred.ClientSecret),
		RedirectURL:  strings.TrimSpace(cred.RedirectURI),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthURL,
			TokenURL:  ep.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
