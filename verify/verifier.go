// Package verify checks the cryptographic signature of a compact-encoded
// ID token against a provider's published signing keys. Claim policy is
// deliberately not enforced here; that belongs to the assert package.
package verify

import (
	"context"
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/open-rails/oidcgate/claims"
	"github.com/open-rails/oidcgate/jwks"
)

// ErrMalformedToken reports a token that could not be decoded at all:
// wrong segment count, bad base64, or claims that are not JSON.
var ErrMalformedToken = errors.New("verify: malformed token")

// ErrUnsupportedAlgorithm reports a token whose alg header is outside the
// allow-list. This is checked before any key lookup so that attacker-chosen
// algorithms ("none", HS256 against an RSA key) never reach the key set.
var ErrUnsupportedAlgorithm = errors.New("verify: unsupported algorithm")

// ErrSignatureInvalid reports a signature that does not verify against the
// resolved key. Worth logging: it can indicate a forged token.
var ErrSignatureInvalid = errors.New("verify: signature invalid")

// DefaultAlgorithms is the signing-algorithm allow-list applied when none
// is configured.
var DefaultAlgorithms = []string{"RS256"}

// Verifier validates token signatures using keys from a KeyProvider.
// It is stateless and safe for concurrent use.
type Verifier struct {
	keys    jwks.KeyProvider
	allowed []string
}

// Opt configures a Verifier.
type Opt func(*Verifier)

// WithAlgorithms replaces the signing-algorithm allow-list.
func WithAlgorithms(algs ...string) Opt {
	return func(v *Verifier) { v.allowed = algs }
}

// New builds a verifier over the given key provider.
func New(keys jwks.KeyProvider, opts ...Opt) *Verifier {
	v := &Verifier{keys: keys, allowed: DefaultAlgorithms}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify decodes the compact token, enforces the algorithm allow-list,
// resolves the signing key by the kid header, and checks the signature.
// On success it returns the decoded payload; the caller still has to run
// claim assertions over it.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (claims.Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	keyfunc := func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		if !v.algAllowed(alg) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
		}
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.Resolve(ctx, kid)
		if err != nil {
			return nil, err
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("%w: unusable key %q: %v", jwks.ErrKeySourceUnavailable, kid, err)
		}
		return raw, nil
	}

	token, err := parser.Parse(rawToken, keyfunc)
	if err != nil {
		return nil, mapParseError(err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}
	return claims.Claims(mc), nil
}

func (v *Verifier) algAllowed(alg string) bool {
	for _, a := range v.allowed {
		if a == alg {
			return true
		}
	}
	return false
}

// mapParseError translates golang-jwt's error chain into this package's
// taxonomy. Key-provider errors pass through so callers can distinguish an
// unavailable key source from a bad token.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm),
		errors.Is(err, jwks.ErrUnknownKeyID),
		errors.Is(err, jwks.ErrKeySourceUnavailable):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w", ErrSignatureInvalid)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
