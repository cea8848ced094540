// Package auth turns a verified, asserted ID token into an authenticated
// principal. It is the boundary that converts every lower-level failure
// into a single external-facing Failure while preserving the cause for
// logging.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/oidcgate/assert"
	"github.com/open-rails/oidcgate/claims"
	"github.com/open-rails/oidcgate/verify"
)

// DefaultAuthority is the single authority granted by the default mapper.
const DefaultAuthority = "ROLE_USER"

// Principal is the authenticated output handed to the host's request
// pipeline. It is created per successful authentication and owned by the
// request; nothing here is shared across requests.
type Principal struct {
	ID          string
	Authorities []string
}

// UserMapper maps a verified claim set to a principal. Hosts supply their
// own implementation to look up roles, enrich from a directory, and so on.
type UserMapper interface {
	MapPrincipal(c claims.Claims) (Principal, error)
}

// MapperFunc adapts a function to the UserMapper interface.
type MapperFunc func(c claims.Claims) (Principal, error)

func (f MapperFunc) MapPrincipal(c claims.Claims) (Principal, error) { return f(c) }

// DefaultMapper maps the sub claim to the principal id and grants the
// single default authority.
type DefaultMapper struct{}

func (DefaultMapper) MapPrincipal(c claims.Claims) (Principal, error) {
	sub := c.Subject()
	if sub == "" {
		return Principal{}, errors.New("auth: token has no sub claim")
	}
	return Principal{ID: sub, Authorities: []string{DefaultAuthority}}, nil
}

// Result is what the OAuth2 code-exchange collaborator hands over: the raw
// ID token plus whatever exchange metadata came with it.
type Result struct {
	// IDToken is the compact-encoded signed ID token.
	IDToken string
	// AccessToken is the access token from the exchange, if any.
	AccessToken string
	// Nonce is the value bound to the original authorization request, if
	// one was issued. When set, the nonce claim must match it.
	Nonce string
}

// Stage identifies where authentication failed.
type Stage string

const (
	StageVerification Stage = "verification"
	StageClaims       Stage = "claims"
	StageMapping      Stage = "mapping"
)

// Failure is the single external-facing authentication error. Its message
// is deliberately generic so verification internals never leak to the
// client; the original cause stays reachable through Unwrap for logging.
type Failure struct {
	Stage Stage
	Cause error
}

func (f *Failure) Error() string { return "auth: authentication failed" }
func (f *Failure) Unwrap() error { return f.Cause }

// Provider authenticates authorization results for one configured identity
// provider: signature verification, then claim assertions, then user
// mapping, strictly in that order.
type Provider struct {
	verifier *verify.Verifier
	expect   assert.Expect
	extras   []assert.Assertion
	mapper   UserMapper
	log      logrus.FieldLogger
}

// ProviderOpt configures a Provider.
type ProviderOpt func(*Provider)

// WithMapper replaces the default user-mapping strategy.
func WithMapper(m UserMapper) ProviderOpt {
	return func(p *Provider) { p.mapper = m }
}

// WithAssertions appends provider-specific rules after the baseline set.
func WithAssertions(a ...assert.Assertion) ProviderOpt {
	return func(p *Provider) { p.extras = append(p.extras, a...) }
}

// WithLogger sets the diagnostics logger.
func WithLogger(log logrus.FieldLogger) ProviderOpt {
	return func(p *Provider) { p.log = log }
}

// NewProvider builds an authentication provider from a signature verifier
// and the claim expectations for this identity provider.
func NewProvider(verifier *verify.Verifier, expect assert.Expect, opts ...ProviderOpt) *Provider {
	p := &Provider{
		verifier: verifier,
		expect:   expect,
		mapper:   DefaultMapper{},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authenticate verifies the ID token, asserts its claims, and maps it to a
// principal. Every failure comes back as a *Failure carrying its stage and
// cause; there are no side effects beyond the returned value.
func (p *Provider) Authenticate(ctx context.Context, res Result) (*Principal, error) {
	if res.IDToken == "" {
		return nil, &Failure{
			Stage: StageVerification,
			Cause: fmt.Errorf("%w: authorization result carries no id token", verify.ErrMalformedToken),
		}
	}

	cl, err := p.verifier.Verify(ctx, res.IDToken)
	if err != nil {
		if errors.Is(err, verify.ErrSignatureInvalid) {
			// A well-formed token with a bad signature is a potential
			// forgery attempt, not routine noise.
			p.log.WithField("issuer", p.expect.Issuer).Warn("id token signature verification failed")
		}
		return nil, &Failure{Stage: StageVerification, Cause: err}
	}

	expect := p.expect
	expect.Nonce = res.Nonce
	chain := assert.NewChain(assert.Baseline(expect), p.extras...)
	if err := chain.Assert(cl); err != nil {
		return nil, &Failure{Stage: StageClaims, Cause: err}
	}

	principal, err := p.mapper.MapPrincipal(cl)
	if err != nil {
		return nil, &Failure{Stage: StageMapping, Cause: err}
	}
	return &principal, nil
}

// Issuer returns the issuer this provider authenticates for.
func (p *Provider) Issuer() string { return p.expect.Issuer }

// ClockSkew returns the configured skew tolerance.
func (p *Provider) ClockSkew() time.Duration { return p.expect.ClockSkew }
