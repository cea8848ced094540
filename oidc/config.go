// Package oidckit holds the relying-party side of the OAuth2/OIDC
// handshake: provider metadata, client registration, the authorization
// redirect, and the code exchange that yields the raw ID token. Token
// verification itself lives in the verify and assert packages.
package oidckit

import (
	"strings"

	"golang.org/x/oauth2"
)

// ProviderConfig is the immutable metadata of one identity provider.
// Loaded once at startup, shared read-only by every request routed to the
// provider.
type ProviderConfig struct {
	Issuer                string
	JWKSURL               string
	AuthorizationEndpoint string
	TokenEndpoint         string
}

// ClientConfig is this relying party's registration with one provider.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OAuthConfig derives the oauth2 configuration for the provider/client
// pair. The openid scope is always present.
func OAuthConfig(p ProviderConfig, c ClientConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       ensureOpenID(c.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthorizationEndpoint,
			TokenURL: p.TokenEndpoint,
		},
	}
}

func ensureOpenID(scopes []string) []string {
	for _, s := range scopes {
		if s == "openid" {
			return scopes
		}
	}
	out := make([]string, 0, len(scopes)+1)
	out = append(out, "openid")
	out = append(out, scopes...)
	return out
}

func trimIssuer(issuer string) string {
	return strings.TrimRight(issuer, "/")
}
