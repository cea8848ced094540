package oidckit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/open-rails/oidcgate/auth"
)

// AuthURLOpt configures authorization URL parameters.
type AuthURLOpt = oauth2.AuthCodeOption

// WithURLParam adds an arbitrary URL parameter to the auth request.
func WithURLParam(key, value string) AuthURLOpt {
	return oauth2.SetAuthURLParam(key, value)
}

// WithNonce binds a nonce to the authorization request. The same value
// must later be handed to authentication so the nonce claim can be checked.
func WithNonce(nonce string) AuthURLOpt {
	return oauth2.SetAuthURLParam("nonce", nonce)
}

// AuthURL builds the authorization redirect URL for a provider/client pair.
func AuthURL(p ProviderConfig, c ClientConfig, state string, opts ...AuthURLOpt) string {
	return OAuthConfig(p, c).AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens and shapes the response
// into an auth.Result. The exchange itself is plain OAuth2; the only OIDC
// requirement enforced here is that an id_token came back.
func Exchange(ctx context.Context, p ProviderConfig, c ClientConfig, code string, opts ...oauth2.AuthCodeOption) (auth.Result, error) {
	tok, err := OAuthConfig(p, c).Exchange(ctx, code, opts...)
	if err != nil {
		return auth.Result{}, fmt.Errorf("oidc: token exchange failed: %w", err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return auth.Result{}, errors.New("oidc: no id_token in token response")
	}
	return auth.Result{
		IDToken:     rawIDToken,
		AccessToken: tok.AccessToken,
	}, nil
}
