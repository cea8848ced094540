// Package jwks resolves identity-provider signing keys by key id, either
// from a static pre-fetched set or from a live JWKS endpoint with caching.
package jwks

import (
	"context"
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrKeySourceUnavailable reports that the key set could not be obtained at
// all: network failure, non-2xx status, or a malformed JWKS document.
// Retrying is the caller's decision; the provider never retries on its own.
var ErrKeySourceUnavailable = errors.New("jwks: key source unavailable")

// ErrUnknownKeyID reports that the token references a key id that is not
// present in the provider's current key set.
var ErrUnknownKeyID = errors.New("jwks: unknown key id")

// KeyProvider resolves a signing key by its key id. Implementations must be
// safe for concurrent use.
type KeyProvider interface {
	Resolve(ctx context.Context, kid string) (jwk.Key, error)
}

// lookup finds a key in a set. A missing kid is tolerated only when the set
// holds a single key, which is how several IdPs publish their JWKS.
func lookup(set jwk.Set, kid string) (jwk.Key, bool) {
	if set == nil {
		return nil, false
	}
	if kid == "" {
		if set.Len() == 1 {
			return set.Key(0)
		}
		return nil, false
	}
	return set.LookupKeyID(kid)
}
