// Package oidctest provides a mock OpenID Connect identity provider for
// tests: it serves discovery metadata, a JWKS document, and a token
// endpoint, and signs ID tokens that validate against its own keys. No
// real identity provider is needed to exercise the full login flow.
//
// Example usage:
//
//	idp := oidctest.NewIssuer("app1")
//	defer idp.Close()
//
//	cfg, _ := oidckit.Discover(ctx, idp.URL())
//	token := idp.IDToken("user-42", nil)
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Issuer is a mock identity provider backed by an httptest server.
type Issuer struct {
	server   *httptest.Server
	audience string

	mu          sync.Mutex
	key         *rsa.PrivateKey
	kid         string
	nextIDToken string

	jwksFetches atomic.Int64
}

// NewIssuer creates a mock provider whose tokens carry the given audience.
// Call Close when done.
func NewIssuer(audience string) *Issuer {
	i := &Issuer{audience: audience}
	i.rotate("test-key-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", i.handleDiscovery)
	mux.HandleFunc("/.well-known/jwks.json", i.handleJWKS)
	mux.HandleFunc("/authorize", i.handleAuthorize)
	mux.HandleFunc("/token", i.handleToken)

	i.server = httptest.NewServer(mux)
	return i
}

// URL returns the issuer base URL. Use it as the configured issuer.
func (i *Issuer) URL() string { return i.server.URL }

// Audience returns the audience baked into issued tokens.
func (i *Issuer) Audience() string { return i.audience }

// JWKSURL returns the key-set endpoint.
func (i *Issuer) JWKSURL() string { return i.server.URL + "/.well-known/jwks.json" }

// JWKSFetches returns how many times the key set was fetched.
func (i *Issuer) JWKSFetches() int64 { return i.jwksFetches.Load() }

// Close shuts down the test server.
func (i *Issuer) Close() { i.server.Close() }

// Rotate replaces the signing key under a new key id. Tokens signed before
// the rotation no longer validate against the served JWKS.
func (i *Issuer) Rotate(kid string) { i.rotate(kid) }

func (i *Issuer) rotate(kid string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("oidctest: generate RSA key: " + err.Error())
	}
	i.mu.Lock()
	i.key = key
	i.kid = kid
	i.mu.Unlock()
}

// KeySet returns the current public keys as a jwk.Set, for wiring a
// static key provider without going over HTTP.
func (i *Issuer) KeySet() jwk.Set {
	i.mu.Lock()
	key, kid := i.key, i.kid
	i.mu.Unlock()

	pub, err := jwk.FromRaw(&key.PublicKey)
	if err != nil {
		panic("oidctest: jwk from raw: " + err.Error())
	}
	_ = pub.Set(jwk.KeyIDKey, kid)
	_ = pub.Set(jwk.AlgorithmKey, "RS256")
	_ = pub.Set(jwk.KeyUsageKey, "sig")
	set := jwk.NewSet()
	_ = set.AddKey(pub)
	return set
}

// IDToken signs an ID token for the given subject. Defaults: this issuer,
// the configured audience, one hour of validity. Entries in extra override
// or (with a nil value) remove defaults.
func (i *Issuer) IDToken(sub string, extra map[string]any) string {
	now := time.Now()
	mc := jwt.MapClaims{
		"iss": i.URL(),
		"aud": i.audience,
		"sub": sub,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(mc, k)
			continue
		}
		mc[k] = v
	}
	return i.sign(mc)
}

// ExpiredIDToken signs a token that is already past its expiry.
func (i *Issuer) ExpiredIDToken(sub string) string {
	return i.IDToken(sub, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
}

// SetNextIDToken queues the id_token the token endpoint returns for the
// next code exchange.
func (i *Issuer) SetNextIDToken(tok string) {
	i.mu.Lock()
	i.nextIDToken = tok
	i.mu.Unlock()
}

func (i *Issuer) sign(mc jwt.MapClaims) string {
	i.mu.Lock()
	key, kid := i.key, i.kid
	i.mu.Unlock()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	token.Header["kid"] = kid
	raw, err := token.SignedString(key)
	if err != nil {
		panic("oidctest: sign token: " + err.Error())
	}
	return raw
}

func (i *Issuer) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                 i.URL(),
		"authorization_endpoint": i.URL() + "/authorize",
		"token_endpoint":         i.URL() + "/token",
		"jwks_uri":               i.JWKSURL(),
	})
}

func (i *Issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	i.jwksFetches.Add(1)
	b, err := json.Marshal(i.KeySet())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

// handleAuthorize exists so redirects resolve; tests drive the callback
// directly instead of scripting a browser.
func (i *Issuer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "authorize: client_id=%s state=%s", r.FormValue("client_id"), r.FormValue("state"))
}

func (i *Issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	i.mu.Lock()
	idToken := i.nextIDToken
	i.nextIDToken = ""
	i.mu.Unlock()
	if idToken == "" {
		// No queued token: mint one for a default subject.
		idToken = i.IDToken("user-1", nil)
	}
	writeJSON(w, map[string]any{
		"access_token": "test-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
