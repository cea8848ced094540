// Package memorystore provides a single-node, in-memory backing store for
// the login handshake. For multi-node deployments use the redis store.
package memorystore

import (
	"context"
	"sync"
	"time"

	oidckit "github.com/open-rails/oidcgate/oidc"
)

// StateCache is an in-memory oidckit.StateCache with TTL eviction.
type StateCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	data   map[string]item
	closed chan struct{}
}

type item struct {
	v   oidckit.StateData
	exp time.Time
}

// NewStateCache creates an in-memory state cache. If ttl <= 0, entries
// live for 10 minutes, which bounds how long a login handshake may take.
// A background goroutine sweeps expired entries every minute.
func NewStateCache(ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &StateCache{ttl: ttl, data: make(map[string]item), closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

// Put binds handshake data to a state value.
func (s *StateCache) Put(_ context.Context, state string, v oidckit.StateData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state] = item{v: v, exp: time.Now().Add(s.ttl)}
	return nil
}

// Take returns and removes the entry so the state cannot be replayed
// against the callback.
func (s *StateCache) Take(_ context.Context, state string) (oidckit.StateData, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[state]
	if !ok {
		return oidckit.StateData{}, false, nil
	}
	delete(s.data, state)
	if time.Now().After(it.exp) {
		return oidckit.StateData{}, false, nil
	}
	return it.v, true, nil
}

// cleanupLoop sweeps expired entries so abandoned handshakes do not
// accumulate.
func (s *StateCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.closed:
			return
		}
	}
}

func (s *StateCache) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, v := range s.data {
		if now.After(v.exp) {
			delete(s.data, k)
		}
	}
}

// Close stops the background sweeper.
func (s *StateCache) Close() error {
	close(s.closed)
	return nil
}
