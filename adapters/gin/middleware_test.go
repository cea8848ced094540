package authgin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/oidcgate/audit"
	"github.com/open-rails/oidcgate/auth"
	"github.com/open-rails/oidcgate/dispatch"
	oidckit "github.com/open-rails/oidcgate/oidc"
	"github.com/open-rails/oidcgate/oidctest"
	memorylimiter "github.com/open-rails/oidcgate/ratelimit/memory"
	memorystore "github.com/open-rails/oidcgate/storage/memory"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	idp      *oidctest.Issuer
	router   *gin.Engine
	captured *auth.Principal
	events   []audit.LoginEvent
}

type captureEvents struct{ f *fixture }

func (c captureEvents) LogLogin(_ context.Context, e audit.LoginEvent) error {
	c.f.events = append(c.f.events, e)
	return nil
}

func newFixture(t *testing.T, opts ...Opt) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{idp: oidctest.NewIssuer("app1")}
	t.Cleanup(f.idp.Close)

	cfg, err := oidckit.Discover(context.Background(), f.idp.URL())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	reg, err := dispatch.NewRegistration("test-idp").
		Provider(cfg).
		Client(oidckit.ClientConfig{
			ClientID:    "app1",
			RedirectURL: "http://rp.local/login/oidc",
		}).
		Route(dispatch.PathPattern("/login/oidc")).
		Logger(quietLogger()).
		OnSuccess(func(w http.ResponseWriter, _ *http.Request, p *auth.Principal) {
			f.captured = p
			w.WriteHeader(http.StatusNoContent)
		}).
		Build()
	if err != nil {
		t.Fatalf("build registration: %v", err)
	}

	states := memorystore.NewStateCache(time.Minute)
	t.Cleanup(func() { _ = states.Close() })

	opts = append([]Opt{WithLogger(quietLogger()), WithAudit(captureEvents{f})}, opts...)

	f.router = gin.New()
	f.router.Use(New(dispatch.NewRegistry(reg), states, opts...))
	f.router.GET("/login/oidc", func(c *gin.Context) { c.String(http.StatusOK, "fell through") })
	f.router.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "public") })
	return f
}

// beginLogin drives the redirect leg and returns the bound state and nonce.
func (f *fixture) beginLogin(t *testing.T) (state, nonce string) {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/oidc", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("begin: got status %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, f.idp.URL()+"/authorize") {
		t.Fatalf("begin: redirected to %q", loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "app1" {
		t.Errorf("client_id: got %q", q.Get("client_id"))
	}
	if !strings.Contains(q.Get("scope"), "openid") {
		t.Errorf("scope %q missing openid", q.Get("scope"))
	}
	state, nonce = q.Get("state"), q.Get("nonce")
	if state == "" || nonce == "" {
		t.Fatalf("missing state/nonce in %q", loc)
	}
	return state, nonce
}

func (f *fixture) finishLogin(t *testing.T, state string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login/oidc?code=test-code&state="+url.QueryEscape(state), nil)
	f.router.ServeHTTP(w, req)
	return w
}

func TestLoginFlowEndToEnd(t *testing.T) {
	f := newFixture(t)

	state, nonce := f.beginLogin(t)
	f.idp.SetNextIDToken(f.idp.IDToken("user-42", map[string]any{"nonce": nonce}))

	w := f.finishLogin(t, state)
	if w.Code != http.StatusNoContent {
		t.Fatalf("callback: got status %d body %s", w.Code, w.Body.String())
	}
	if f.captured == nil || f.captured.ID != "user-42" {
		t.Fatalf("principal: got %+v", f.captured)
	}
	if len(f.captured.Authorities) != 1 || f.captured.Authorities[0] != auth.DefaultAuthority {
		t.Errorf("authorities: got %v", f.captured.Authorities)
	}
	if len(f.events) != 1 || f.events[0].UserID != "user-42" || f.events[0].Provider != "test-idp" {
		t.Errorf("audit events: got %+v", f.events)
	}
}

func TestLoginWrongAudienceRejected(t *testing.T) {
	f := newFixture(t)

	state, nonce := f.beginLogin(t)
	f.idp.SetNextIDToken(f.idp.IDToken("user-42", map[string]any{
		"aud":   "other-app",
		"nonce": nonce,
	}))

	w := f.finishLogin(t, state)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
	if f.captured != nil {
		t.Error("no principal should be established")
	}
}

func TestLoginNonceMismatchRejected(t *testing.T) {
	f := newFixture(t)

	state, _ := f.beginLogin(t)
	f.idp.SetNextIDToken(f.idp.IDToken("user-42", map[string]any{"nonce": "stale-nonce"}))

	if w := f.finishLogin(t, state); w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestCallbackUnknownState(t *testing.T) {
	f := newFixture(t)
	if w := f.finishLogin(t, "never-issued"); w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestCallbackStateNotReplayable(t *testing.T) {
	f := newFixture(t)

	state, nonce := f.beginLogin(t)
	f.idp.SetNextIDToken(f.idp.IDToken("user-42", map[string]any{"nonce": nonce}))
	if w := f.finishLogin(t, state); w.Code != http.StatusNoContent {
		t.Fatalf("first callback: got %d", w.Code)
	}
	// The state was consumed; replaying it must fail.
	if w := f.finishLogin(t, state); w.Code != http.StatusUnauthorized {
		t.Fatalf("replayed callback: got %d, want 401", w.Code)
	}
}

func TestNonMatchingRequestPassesThrough(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public", nil))
	if w.Code != http.StatusOK || w.Body.String() != "public" {
		t.Fatalf("got %d %q, want untouched passthrough", w.Code, w.Body.String())
	}
}

func TestDefaultSuccessRedirectsToNext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	idp := oidctest.NewIssuer("app1")
	t.Cleanup(idp.Close)

	cfg, err := oidckit.Discover(context.Background(), idp.URL())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	reg, err := dispatch.NewRegistration("test-idp").
		Provider(cfg).
		Client(oidckit.ClientConfig{ClientID: "app1", RedirectURL: "http://rp.local/login/oidc"}).
		Route(dispatch.PathPattern("/login/oidc")).
		Logger(quietLogger()).
		Build()
	if err != nil {
		t.Fatalf("build registration: %v", err)
	}

	states := memorystore.NewStateCache(time.Minute)
	t.Cleanup(func() { _ = states.Close() })

	router := gin.New()
	router.Use(New(dispatch.NewRegistry(reg), states, WithLogger(quietLogger())))
	router.GET("/login/oidc", func(c *gin.Context) { c.String(http.StatusOK, "fell through") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/oidc?next=/dashboard", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("begin: got status %d", w.Code)
	}
	u, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	state, nonce := u.Query().Get("state"), u.Query().Get("nonce")
	idp.SetNextIDToken(idp.IDToken("user-42", map[string]any{"nonce": nonce}))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/oidc?code=c&state="+url.QueryEscape(state), nil))
	if w.Code != http.StatusFound {
		t.Fatalf("callback: got status %d body %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("redirect target: got %q, want /dashboard", loc)
	}
}

func TestLoginStartRateLimited(t *testing.T) {
	limiter := memorylimiter.New(map[string]memorylimiter.Limit{
		memorylimiter.BucketLoginStart: {Limit: 1, Window: time.Minute},
	})
	f := newFixture(t, WithRateLimiter(limiter))

	f.beginLogin(t)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/oidc", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", w.Code)
	}
}
