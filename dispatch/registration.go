package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/oidcgate/assert"
	"github.com/open-rails/oidcgate/auth"
	"github.com/open-rails/oidcgate/jwks"
	oidckit "github.com/open-rails/oidcgate/oidc"
	"github.com/open-rails/oidcgate/verify"
)

// SuccessHandler runs after a principal has been established for a request,
// typically to redirect the user back to where they were headed.
type SuccessHandler func(w http.ResponseWriter, r *http.Request, p *auth.Principal)

// Registration binds everything one identity provider needs: its metadata,
// this relying party's client registration, a key source, the claim rules,
// the user-mapping strategy, and the route predicate that scopes it.
// Immutable once built.
type Registration struct {
	name     string
	provider oidckit.ProviderConfig
	client   oidckit.ClientConfig
	keys     jwks.KeyProvider
	route    RoutePredicate
	authn    *auth.Provider
	success  SuccessHandler
}

// Name returns the registration's configured name.
func (r *Registration) Name() string { return r.name }

// Provider returns the identity provider metadata.
func (r *Registration) Provider() oidckit.ProviderConfig { return r.provider }

// Client returns the relying party's client registration.
func (r *Registration) Client() oidckit.ClientConfig { return r.client }

// Keys returns the signing-key source for this provider.
func (r *Registration) Keys() jwks.KeyProvider { return r.keys }

// SuccessHandler returns the configured post-login handler, or nil.
func (r *Registration) SuccessHandler() SuccessHandler { return r.success }

// Authenticate runs the full verification pipeline for this provider.
func (r *Registration) Authenticate(ctx context.Context, res auth.Result) (*auth.Principal, error) {
	return r.authn.Authenticate(ctx, res)
}

// Builder assembles a Registration and validates completeness before
// producing it. Zero values fall back to: Any() route, default mapper,
// RS256-only algorithms, zero clock skew.
type Builder struct {
	name      string
	provider  oidckit.ProviderConfig
	client    oidckit.ClientConfig
	keys      jwks.KeyProvider
	route     RoutePredicate
	extras    []assert.Assertion
	mapper    auth.UserMapper
	success   SuccessHandler
	algs      []string
	clockSkew time.Duration
	log       logrus.FieldLogger
}

// NewRegistration starts a builder for a named provider registration.
func NewRegistration(name string) *Builder {
	return &Builder{name: name}
}

// Provider sets the identity provider metadata.
func (b *Builder) Provider(cfg oidckit.ProviderConfig) *Builder {
	b.provider = cfg
	return b
}

// Client sets the relying party's client registration.
func (b *Builder) Client(cfg oidckit.ClientConfig) *Builder {
	b.client = cfg
	return b
}

// Keys overrides the signing-key source. Without it, a remote provider is
// built from the metadata's JWKS URL.
func (b *Builder) Keys(p jwks.KeyProvider) *Builder {
	b.keys = p
	return b
}

// Route scopes the registration to matching requests. Defaults to Any().
func (b *Builder) Route(p RoutePredicate) *Builder {
	b.route = p
	return b
}

// Assertions appends provider-specific claim rules after the baseline set.
func (b *Builder) Assertions(a ...assert.Assertion) *Builder {
	b.extras = append(b.extras, a...)
	return b
}

// Mapper replaces the default user-mapping strategy.
func (b *Builder) Mapper(m auth.UserMapper) *Builder {
	b.mapper = m
	return b
}

// OnSuccess sets the post-login handler.
func (b *Builder) OnSuccess(h SuccessHandler) *Builder {
	b.success = h
	return b
}

// Algorithms replaces the signing-algorithm allow-list.
func (b *Builder) Algorithms(algs ...string) *Builder {
	b.algs = algs
	return b
}

// ClockSkew sets the tolerance applied to exp and iat checks.
func (b *Builder) ClockSkew(d time.Duration) *Builder {
	b.clockSkew = d
	return b
}

// Logger sets the diagnostics logger for the authentication pipeline.
func (b *Builder) Logger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration and produces the immutable
// Registration.
func (b *Builder) Build() (*Registration, error) {
	if b.name == "" {
		return nil, errors.New("dispatch: registration name is required")
	}
	if b.provider.Issuer == "" {
		return nil, fmt.Errorf("dispatch: registration %q: provider issuer is required", b.name)
	}
	if b.client.ClientID == "" {
		return nil, fmt.Errorf("dispatch: registration %q: client id is required", b.name)
	}

	keys := b.keys
	if keys == nil {
		if b.provider.JWKSURL == "" {
			return nil, fmt.Errorf("dispatch: registration %q: a key source or JWKS URL is required", b.name)
		}
		keys = jwks.NewRemote(b.provider.JWKSURL)
	}

	route := b.route
	if route == nil {
		route = Any()
	}

	var verifyOpts []verify.Opt
	if len(b.algs) > 0 {
		verifyOpts = append(verifyOpts, verify.WithAlgorithms(b.algs...))
	}

	authOpts := []auth.ProviderOpt{auth.WithAssertions(b.extras...)}
	if b.mapper != nil {
		authOpts = append(authOpts, auth.WithMapper(b.mapper))
	}
	if b.log != nil {
		authOpts = append(authOpts, auth.WithLogger(b.log))
	}

	authn := auth.NewProvider(
		verify.New(keys, verifyOpts...),
		assert.Expect{
			Issuer:    b.provider.Issuer,
			ClientID:  b.client.ClientID,
			ClockSkew: b.clockSkew,
		},
		authOpts...,
	)

	return &Registration{
		name:     b.name,
		provider: b.provider,
		client:   b.client,
		keys:     keys,
		route:    route,
		authn:    authn,
		success:  b.success,
	}, nil
}
