// Package redisstore backs the login handshake with Redis, for
// deployments where the authorization redirect and the provider callback
// may land on different nodes.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	oidckit "github.com/open-rails/oidcgate/oidc"
)

// StateCache is a Redis-backed oidckit.StateCache.
type StateCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

// NewStateCache creates a Redis state cache under the given key prefix.
func NewStateCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *StateCache {
	if keyPrefix == "" {
		keyPrefix = "oidcgate:state:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (s *StateCache) key(state string) string { return s.keyNS + state }

// Put binds handshake data to a state value with the configured TTL.
func (s *StateCache) Put(ctx context.Context, state string, data oidckit.StateData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(state), b, s.ttl).Err()
}

// Take atomically reads and deletes the entry, so a state value consumed
// on one node cannot be replayed on another.
func (s *StateCache) Take(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	val, err := s.rdb.GetDel(ctx, s.key(state)).Bytes()
	if err == redis.Nil {
		return oidckit.StateData{}, false, nil
	}
	if err != nil {
		return oidckit.StateData{}, false, err
	}
	var d oidckit.StateData
	if err := json.Unmarshal(val, &d); err != nil {
		return oidckit.StateData{}, false, err
	}
	return d, true, nil
}
