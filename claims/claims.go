// Package claims holds the decoded claim set of an ID token and typed
// accessors over it. A Claims value is created fresh for every verification
// attempt and is never persisted.
package claims

import (
	"encoding/json"
	"time"
)

// Claims is the decoded payload of an ID token, keyed by claim name.
// Values carry whatever shape the token's JSON had; use the accessors to
// read the registered claims without caring about encoding details.
type Claims map[string]any

// Get returns the raw value of a claim.
func (c Claims) Get(name string) (any, bool) {
	v, ok := c[name]
	return v, ok
}

// String returns a claim as a string, or "" if absent or not a string.
func (c Claims) String(name string) string {
	if v, ok := c[name].(string); ok {
		return v
	}
	return ""
}

// Subject returns the sub claim.
func (c Claims) Subject() string { return c.String("sub") }

// Issuer returns the iss claim.
func (c Claims) Issuer() string { return c.String("iss") }

// Nonce returns the nonce claim.
func (c Claims) Nonce() string { return c.String("nonce") }

// Audience returns the aud claim. Both the single-string and the
// string-array encodings are accepted, per RFC 7519 §4.1.3.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasAudience reports whether the aud claim contains the given value.
func (c Claims) HasAudience(want string) bool {
	for _, a := range c.Audience() {
		if a == want {
			return true
		}
	}
	return false
}

// ExpiresAt returns the exp claim as a time, with ok=false when absent
// or not numeric.
func (c Claims) ExpiresAt() (time.Time, bool) { return c.numericDate("exp") }

// IssuedAt returns the iat claim as a time, with ok=false when absent
// or not numeric.
func (c Claims) IssuedAt() (time.Time, bool) { return c.numericDate("iat") }

// numericDate reads a NumericDate claim. JSON numbers decode as float64
// by default and as json.Number when the parser opts into it; signed
// integers show up from hand-built claim maps in tests.
func (c Claims) numericDate(name string) (time.Time, bool) {
	v, ok := c[name]
	if !ok {
		return time.Time{}, false
	}
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case int:
		return time.Unix(int64(n), 0), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, err := n.Float64()
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(int64(f), 0), true
		}
		return time.Unix(i, 0), true
	}
	return time.Time{}, false
}
