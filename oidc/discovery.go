package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type discoveryDoc struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Discover resolves a provider's metadata from its well-known OIDC
// configuration document. The advertised issuer must match the requested
// one, and all endpoints the kit needs must be present.
func Discover(ctx context.Context, issuer string) (ProviderConfig, error) {
	trimmed := trimIssuer(issuer)
	if trimmed == "" {
		return ProviderConfig{}, errors.New("oidc: issuer is empty")
	}

	discoveryURL := trimmed + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return ProviderConfig{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("oidc: discovery fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ProviderConfig{}, fmt.Errorf("oidc: discovery failed: %s", resp.Status)
	}

	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return ProviderConfig{}, fmt.Errorf("oidc: malformed discovery document: %w", err)
	}
	if got := trimIssuer(doc.Issuer); got != "" && got != trimmed {
		return ProviderConfig{}, fmt.Errorf("oidc: issuer mismatch: %s", doc.Issuer)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.JWKSURI == "" {
		return ProviderConfig{}, errors.New("oidc: discovery missing endpoints")
	}

	effective := doc.Issuer
	if effective == "" {
		effective = issuer
	}
	return ProviderConfig{
		Issuer:                effective,
		JWKSURL:               doc.JWKSURI,
		AuthorizationEndpoint: doc.AuthorizationEndpoint,
		TokenEndpoint:         doc.TokenEndpoint,
	}, nil
}
