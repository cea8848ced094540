package jwks

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Static serves keys from a fixed, pre-fetched set. Intended for tests,
// offline verification, and providers whose keys are pinned at deploy time.
type Static struct {
	set jwk.Set
}

// NewStatic wraps an already-parsed key set.
func NewStatic(set jwk.Set) *Static {
	return &Static{set: set}
}

// ParseStatic builds a static provider from a raw JWKS document.
func ParseStatic(raw []byte) (*Static, error) {
	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse key set: %v", ErrKeySourceUnavailable, err)
	}
	return &Static{set: set}, nil
}

// Resolve returns the key with the given id, or ErrUnknownKeyID.
func (s *Static) Resolve(_ context.Context, kid string) (jwk.Key, error) {
	if s == nil || s.set == nil {
		return nil, fmt.Errorf("%w: no key set configured", ErrKeySourceUnavailable)
	}
	key, ok := lookup(s.set, kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return key, nil
}

// Len returns the number of keys in the set.
func (s *Static) Len() int {
	if s == nil || s.set == nil {
		return 0
	}
	return s.set.Len()
}
