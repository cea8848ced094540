package assert

import (
	"errors"
	"testing"
	"time"

	"github.com/open-rails/oidcgate/claims"
)

func fixedNow(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func validClaims(now time.Time) claims.Claims {
	return claims.Claims{
		"iss": "https://idp.example",
		"aud": []any{"app1"},
		"sub": "user-42",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Add(-time.Minute).Unix(),
	}
}

func baselineChain(now time.Time, extras ...Assertion) *Chain {
	return NewChain(Baseline(Expect{
		Issuer:   "https://idp.example",
		ClientID: "app1",
		Now:      fixedNow(now),
	}), extras...)
}

func wantViolation(t *testing.T, err error, assertion string) {
	t.Helper()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("got %v, want a Violation", err)
	}
	if v.Assertion != assertion {
		t.Fatalf("violation cites %q (%s), want %q", v.Assertion, v.Reason, assertion)
	}
}

func TestBaselinePasses(t *testing.T) {
	now := time.Now()
	if err := baselineChain(now).Assert(validClaims(now)); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestIssuerMismatchReportedFirst(t *testing.T) {
	now := time.Now()
	c := validClaims(now)
	c["iss"] = "https://evil.example"
	c["aud"] = []any{"someone-else"} // would also fail, but issuer runs first
	wantViolation(t, baselineChain(now).Assert(c), "issuer")
}

func TestAudienceMissingClientID(t *testing.T) {
	now := time.Now()
	c := validClaims(now)
	c["aud"] = []any{"other-app"}
	wantViolation(t, baselineChain(now).Assert(c), "audience")

	// Single-string aud form.
	c["aud"] = "app1"
	if err := baselineChain(now).Assert(c); err != nil {
		t.Fatalf("string aud: %v", err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)

	c := validClaims(now)
	c["exp"] = now.Unix() // exp == now: not yet expired under zero skew
	if err := baselineChain(now).Assert(c); err != nil {
		t.Fatalf("exp == now: %v", err)
	}

	c["exp"] = now.Add(-time.Second).Unix() // one unit in the past: expired
	wantViolation(t, baselineChain(now).Assert(c), "expiry")

	delete(c, "exp")
	wantViolation(t, baselineChain(now).Assert(c), "expiry")
}

func TestExpirySkewTolerance(t *testing.T) {
	now := time.Unix(1700000000, 0)
	chain := NewChain(Baseline(Expect{
		Issuer:    "https://idp.example",
		ClientID:  "app1",
		ClockSkew: 30 * time.Second,
		Now:       fixedNow(now),
	}))

	c := validClaims(now)
	c["exp"] = now.Add(-29 * time.Second).Unix()
	if err := chain.Assert(c); err != nil {
		t.Fatalf("within skew: %v", err)
	}
	c["exp"] = now.Add(-31 * time.Second).Unix()
	wantViolation(t, chain.Assert(c), "expiry")
}

func TestIssuedAtBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)

	c := validClaims(now)
	c["iat"] = now.Unix() // now >= iat: fine
	if err := baselineChain(now).Assert(c); err != nil {
		t.Fatalf("iat == now: %v", err)
	}

	c["iat"] = now.Add(time.Second).Unix() // issued in the future
	wantViolation(t, baselineChain(now).Assert(c), "issued_at")

	delete(c, "iat") // iat is optional
	if err := baselineChain(now).Assert(c); err != nil {
		t.Fatalf("missing iat: %v", err)
	}
}

func TestNonceBinding(t *testing.T) {
	now := time.Now()
	chain := NewChain(Baseline(Expect{
		Issuer:   "https://idp.example",
		ClientID: "app1",
		Nonce:    "n-1",
		Now:      fixedNow(now),
	}))

	c := validClaims(now)
	wantViolation(t, chain.Assert(c), "nonce") // nonce bound but claim missing

	c["nonce"] = "n-2"
	wantViolation(t, chain.Assert(c), "nonce")

	c["nonce"] = "n-1"
	if err := chain.Assert(c); err != nil {
		t.Fatalf("matching nonce: %v", err)
	}

	// No nonce bound: the rule is not part of the baseline at all.
	if err := baselineChain(now).Assert(validClaims(now)); err != nil {
		t.Fatalf("unbound nonce: %v", err)
	}
}

func TestCustomAssertionsRunAfterBaseline(t *testing.T) {
	now := time.Now()
	chain := baselineChain(now, ClaimEquals("acr", "urn:mfa"))

	c := validClaims(now)
	wantViolation(t, chain.Assert(c), "acr")

	c["acr"] = "urn:mfa"
	if err := chain.Assert(c); err != nil {
		t.Fatalf("custom pass: %v", err)
	}

	// Baseline still shields the custom rule: an expired token reports
	// expiry, not the appended assertion.
	c["exp"] = now.Add(-time.Hour).Unix()
	wantViolation(t, chain.Assert(c), "expiry")
}

func TestPlainErrorWrappedWithAssertionName(t *testing.T) {
	now := time.Now()
	chain := baselineChain(now, Named("tenant", func(claims.Claims) error {
		return errors.New("tenant lookup failed")
	}))
	err := chain.Assert(validClaims(now))
	wantViolation(t, err, "tenant")
	var v *Violation
	errors.As(err, &v)
	if v.Reason != "tenant lookup failed" {
		t.Errorf("reason: got %q", v.Reason)
	}
}
