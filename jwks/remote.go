package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultFetchTimeout = 10 * time.Second

// Remote resolves keys from a provider's JWKS endpoint.
//
// The cached set is swapped atomically, so readers always see a complete
// set and are never blocked behind a network fetch. Concurrent cold-cache
// resolves share a single in-flight fetch. A key id missing from the cached
// set triggers exactly one forced refresh before failing with
// ErrUnknownKeyID, which covers provider key rotation without a retry loop.
type Remote struct {
	url     string
	client  *http.Client
	timeout time.Duration
	log     logrus.FieldLogger

	group  singleflight.Group
	cached atomic.Pointer[snapshot]
}

type snapshot struct {
	set       jwk.Set
	fetchedAt time.Time
}

// RemoteOpt configures a Remote provider.
type RemoteOpt func(*Remote)

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) RemoteOpt {
	return func(r *Remote) { r.client = c }
}

// WithFetchTimeout bounds a single JWKS fetch.
func WithFetchTimeout(d time.Duration) RemoteOpt {
	return func(r *Remote) { r.timeout = d }
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(log logrus.FieldLogger) RemoteOpt {
	return func(r *Remote) { r.log = log }
}

// NewRemote creates a provider backed by the given JWKS URL. No fetch
// happens until the first Resolve or Refresh call.
func NewRemote(jwksURL string, opts ...RemoteOpt) *Remote {
	r := &Remote{
		url:     jwksURL,
		client:  http.DefaultClient,
		timeout: defaultFetchTimeout,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL returns the configured JWKS endpoint.
func (r *Remote) URL() string { return r.url }

// Resolve returns the key with the given id, fetching the key set on a cold
// cache and refreshing it once when the id is unknown.
func (r *Remote) Resolve(ctx context.Context, kid string) (jwk.Key, error) {
	set, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := lookup(set, kid); ok {
		return key, nil
	}

	// Unknown kid against the cached set: the provider may have rotated
	// keys since the last fetch. One forced refresh, then give up.
	set, err = r.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := lookup(set, kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return key, nil
}

// Refresh forces a fetch of the key set, sharing the flight with any
// concurrent caller, and swaps the cache on success. A failed or cancelled
// fetch leaves the previously cached set untouched.
func (r *Remote) Refresh(ctx context.Context) (jwk.Set, error) {
	return r.fetchShared(ctx)
}

// current returns the cached set, fetching it if the cache is cold.
func (r *Remote) current(ctx context.Context) (jwk.Set, error) {
	if snap := r.cached.Load(); snap != nil {
		return snap.set, nil
	}
	return r.fetchShared(ctx)
}

// fetchShared coalesces concurrent fetches into one HTTP request. The
// flight runs on a detached context with its own deadline so that one
// caller's cancellation does not fail the fetch for the others; the
// cancelled caller still returns promptly with ctx.Err().
func (r *Remote) fetchShared(ctx context.Context) (jwk.Set, error) {
	ch := r.group.DoChan("fetch", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		set, err := r.fetchOnce(fctx)
		if err != nil {
			return nil, err
		}
		r.cached.Store(&snapshot{set: set, fetchedAt: time.Now()})
		return set, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchOnce performs one GET against the JWKS endpoint. Any failure maps to
// ErrKeySourceUnavailable; an empty or partial set is never installed.
func (r *Remote) fetchOnce(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrKeySourceUnavailable, r.url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrKeySourceUnavailable, err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse key set: %v", ErrKeySourceUnavailable, err)
	}
	return set, nil
}
