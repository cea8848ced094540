// Package authgin wires the provider registry into a gin request chain.
// Matching requests are driven through the authorization-code flow;
// non-matching requests pass through untouched so other authentication
// mechanisms later in the chain still apply.
package authgin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/oidcgate/audit"
	"github.com/open-rails/oidcgate/auth"
	"github.com/open-rails/oidcgate/dispatch"
	oidckit "github.com/open-rails/oidcgate/oidc"
	memorylimiter "github.com/open-rails/oidcgate/ratelimit/memory"
)

const principalKey = "oidcgate.principal"

// RateLimiter throttles login traffic per bucket and client key.
// memorylimiter.Limiter satisfies it; a nil limiter allows everything.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// Exchanger trades an authorization code for tokens. The default runs the
// real OAuth2 exchange; tests may substitute their own.
type Exchanger func(ctx context.Context, reg *dispatch.Registration, code string) (auth.Result, error)

// Handler is the middleware's dependency bundle.
type Handler struct {
	registry *dispatch.Registry
	states   oidckit.StateCache
	exchange Exchanger
	limiter  RateLimiter
	events   audit.EventLogger
	log      logrus.FieldLogger
}

// Opt configures the middleware.
type Opt func(*Handler)

// WithExchanger replaces the token-exchange step.
func WithExchanger(e Exchanger) Opt {
	return func(h *Handler) { h.exchange = e }
}

// WithRateLimiter throttles login starts and callbacks per client IP.
func WithRateLimiter(l RateLimiter) Opt {
	return func(h *Handler) { h.limiter = l }
}

// WithAudit records successful logins to the given sink.
func WithAudit(events audit.EventLogger) Opt {
	return func(h *Handler) { h.events = events }
}

// WithLogger sets the diagnostics logger.
func WithLogger(log logrus.FieldLogger) Opt {
	return func(h *Handler) { h.log = log }
}

// New builds the authentication middleware over a registry and a state
// cache. Mount it ahead of the handlers it protects.
func New(registry *dispatch.Registry, states oidckit.StateCache, opts ...Opt) gin.HandlerFunc {
	h := &Handler{
		registry: registry,
		states:   states,
		events:   audit.Nop{},
		log:      logrus.StandardLogger(),
	}
	h.exchange = func(ctx context.Context, reg *dispatch.Registration, code string) (auth.Result, error) {
		return oidckit.Exchange(ctx, reg.Provider(), reg.Client(), code)
	}
	for _, opt := range opts {
		opt(h)
	}

	return func(c *gin.Context) {
		reg, ok := registry.Match(c.Request)
		if !ok {
			// Not ours: pass through unauthenticated.
			c.Next()
			return
		}
		q := c.Request.URL.Query()
		if code, state := q.Get("code"), q.Get("state"); code != "" && state != "" {
			h.callback(c, reg, code, state)
			return
		}
		h.begin(c, reg)
	}
}

// PrincipalFrom returns the principal established for this request, if
// authentication succeeded.
func PrincipalFrom(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok
}

// begin starts the authorization-code flow: bind fresh state and nonce,
// remember where the user was headed, and redirect to the provider.
func (h *Handler) begin(c *gin.Context, reg *dispatch.Registration) {
	if !h.allow(c, memorylimiter.BucketLoginStart) {
		return
	}

	// Only relative targets are honored to keep the callback redirect
	// on this host.
	next := c.Query("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}

	state := oidckit.NewState()
	nonce := oidckit.NewNonce()
	data := oidckit.StateData{
		Provider:    reg.Name(),
		Nonce:       nonce,
		RedirectURI: next,
		CreatedAt:   time.Now(),
	}
	if err := h.states.Put(c.Request.Context(), state, data); err != nil {
		h.log.WithError(err).Error("storing login state failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "login_unavailable"})
		return
	}

	authURL := oidckit.AuthURL(reg.Provider(), reg.Client(), state, oidckit.WithNonce(nonce))
	c.Redirect(http.StatusFound, authURL)
	c.Abort()
}

// callback finishes the flow: consume the state binding, exchange the
// code, authenticate the ID token, and hand off to the success handler.
func (h *Handler) callback(c *gin.Context, reg *dispatch.Registration, code, state string) {
	if !h.allow(c, memorylimiter.BucketLoginCallback) {
		return
	}
	ctx := c.Request.Context()

	data, ok, err := h.states.Take(ctx, state)
	if err != nil {
		h.log.WithError(err).Error("reading login state failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "login_unavailable"})
		return
	}
	if !ok || data.Provider != reg.Name() {
		h.log.WithField("provider", reg.Name()).Warn("callback with unknown, expired, or foreign state")
		h.unauthorized(c)
		return
	}

	res, err := h.exchange(ctx, reg, code)
	if err != nil {
		h.log.WithError(err).WithField("provider", reg.Name()).Warn("token exchange failed")
		h.unauthorized(c)
		return
	}
	res.Nonce = data.Nonce

	principal, err := reg.Authenticate(ctx, res)
	if err != nil {
		// Log the precise stage and cause; the response stays generic.
		entry := h.log.WithField("provider", reg.Name())
		var failure *auth.Failure
		if errors.As(err, &failure) {
			entry = entry.WithField("stage", string(failure.Stage)).WithError(failure.Cause)
		} else {
			entry = entry.WithError(err)
		}
		entry.Warn("authentication failed")
		h.unauthorized(c)
		return
	}

	c.Set(principalKey, principal)

	if err := h.events.LogLogin(ctx, audit.LoginEvent{
		UserID:    principal.ID,
		Provider:  reg.Name(),
		Issuer:    reg.Provider().Issuer,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		At:        time.Now(),
	}); err != nil {
		h.log.WithError(err).Warn("recording login event failed")
	}

	if handler := reg.SuccessHandler(); handler != nil {
		handler(c.Writer, c.Request, principal)
		c.Abort()
		return
	}
	target := data.RedirectURI
	if target == "" {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func (h *Handler) allow(c *gin.Context, bucket string) bool {
	if h.limiter == nil {
		return true
	}
	ok, err := h.limiter.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		h.log.WithError(err).Warn("rate limiter error")
		return true
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests"})
		return false
	}
	return true
}

func (h *Handler) unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed"})
}
