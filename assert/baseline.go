package assert

import (
	"time"

	"github.com/open-rails/oidcgate/claims"
)

// Expect carries the per-provider expectations the baseline assertions
// check against.
type Expect struct {
	Issuer   string
	ClientID string
	// Nonce is the value bound to the original authorization request.
	// When empty, no nonce was bound and the nonce rule is omitted.
	Nonce string
	// ClockSkew is the tolerance applied to exp and iat. Default 0.
	ClockSkew time.Duration
	// Now overrides the clock, for deterministic tests.
	Now func() time.Time
}

func (e Expect) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Baseline returns the fixed-order baseline rules: issuer, audience,
// expiry, issued-at, and (when bound) nonce. Provider-specific assertions
// belong after these, never instead of them.
func Baseline(e Expect) []Assertion {
	rules := []Assertion{
		Issuer(e.Issuer),
		Audience(e.ClientID),
		NotExpired(e.ClockSkew, e.now),
		IssuedAt(e.ClockSkew, e.now),
	}
	if e.Nonce != "" {
		rules = append(rules, Nonce(e.Nonce))
	}
	return rules
}

// Issuer requires an exact iss match.
func Issuer(expected string) Assertion {
	return Named("issuer", func(c claims.Claims) error {
		got := c.Issuer()
		if got != expected {
			return violationf("issuer", "issuer %q does not match configured issuer %q", got, expected)
		}
		return nil
	})
}

// Audience requires the aud claim to contain the client id.
func Audience(clientID string) Assertion {
	return Named("audience", func(c claims.Claims) error {
		if !c.HasAudience(clientID) {
			return violationf("audience", "audience %v does not contain client id %q", c.Audience(), clientID)
		}
		return nil
	})
}

// NotExpired rejects tokens whose exp lies in the past. The boundary is
// strict on the expired side: a token is expired only once now is past
// exp plus the skew tolerance, so exp == now still passes under zero skew.
func NotExpired(skew time.Duration, now func() time.Time) Assertion {
	return Named("expiry", func(c claims.Claims) error {
		exp, ok := c.ExpiresAt()
		if !ok {
			return violationf("expiry", "exp claim missing or not numeric")
		}
		if now().After(exp.Add(skew)) {
			return violationf("expiry", "token expired at %s", exp.Format(time.RFC3339))
		}
		return nil
	})
}

// IssuedAt rejects tokens issued in the future: the current time must be
// at or past iat minus the skew tolerance. A missing iat passes, since the
// claim is optional in ID tokens from some providers.
func IssuedAt(skew time.Duration, now func() time.Time) Assertion {
	return Named("issued_at", func(c claims.Claims) error {
		iat, ok := c.IssuedAt()
		if !ok {
			return nil
		}
		if now().Before(iat.Add(-skew)) {
			return violationf("issued_at", "token issued in the future at %s", iat.Format(time.RFC3339))
		}
		return nil
	})
}

// Nonce requires the nonce claim to equal the value bound to the original
// authorization request.
func Nonce(expected string) Assertion {
	return Named("nonce", func(c claims.Claims) error {
		got, ok := c.Get("nonce")
		if !ok {
			return violationf("nonce", "nonce claim missing")
		}
		s, ok := got.(string)
		if !ok || s != expected {
			return violationf("nonce", "nonce claim does not match the bound nonce")
		}
		return nil
	})
}

// ClaimEquals asserts that a custom claim holds an exact value. Useful for
// provider-specific rules such as acr or hd checks appended after the
// baseline.
func ClaimEquals(name string, want any) Assertion {
	return Named(name, func(c claims.Claims) error {
		got, ok := c.Get(name)
		if !ok {
			return violationf(name, "%s claim missing", name)
		}
		if got != want {
			return violationf(name, "%s claim is %v, want %v", name, got, want)
		}
		return nil
	})
}
