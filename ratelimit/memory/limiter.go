// Package memorylimiter throttles login traffic per client, guarding the
// authorization-redirect and callback endpoints against brute-force and
// state-grinding attempts. Single-node only; front a shared limiter when
// running multiple replicas.
package memorylimiter

import (
	"errors"
	"sync"
	"time"
)

// Buckets used by the gin adapter.
const (
	BucketLoginStart    = "login_start"
	BucketLoginCallback = "login_callback"
)

// Limit defines the max request count per sliding window for one bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

var defaultLimit = Limit{Limit: 30, Window: time.Minute}

// Limiter is an in-memory sliding-window rate limiter keyed by
// bucket + client key (typically the remote IP).
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	history map[string][]time.Time
}

// New constructs a limiter with the provided per-bucket limits. A
// "default" bucket entry applies to any bucket without its own limit;
// without one, unknown buckets get 30 requests per minute.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{
		limits:  limits,
		history: make(map[string][]time.Time),
	}
}

func (l *Limiter) limitFor(bucket string) Limit {
	if lim, ok := l.limits[bucket]; ok {
		return lim
	}
	if lim, ok := l.limits["default"]; ok {
		return lim
	}
	return defaultLimit
}

// AllowNamed reports whether one more request is allowed for the given
// bucket and key. Denied attempts are not recorded, so a throttled client
// recovers as soon as its window drains. A nil limiter allows everything.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("memorylimiter: bucket and key required")
	}

	lim := l.limitFor(bucket)
	now := time.Now()
	cutoff := now.Add(-lim.Window)
	id := bucket + "\x00" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.history[id]
	for len(recent) > 0 && recent[0].Before(cutoff) {
		recent = recent[1:]
	}

	if len(recent) >= lim.Limit {
		if len(recent) == 0 {
			delete(l.history, id)
		} else {
			l.history[id] = recent
		}
		return false, nil
	}

	l.history[id] = append(recent, now)
	return true, nil
}
