package oidckit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StateData is what gets bound to the opaque state parameter for the
// duration of one login handshake: which provider started it, the nonce
// the ID token must echo, and where to send the user afterwards.
type StateData struct {
	Provider    string    `json:"provider"`
	Nonce       string    `json:"nonce"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateCache stores login state between the authorization redirect and the
// provider callback. Entries are short-lived and consumed exactly once.
type StateCache interface {
	Put(ctx context.Context, state string, data StateData) error
	// Take returns and removes the entry, so a state value cannot be
	// replayed against the callback.
	Take(ctx context.Context, state string) (StateData, bool, error)
}

// NewState mints an unguessable state parameter.
func NewState() string { return uuid.NewString() }

// NewNonce mints a nonce to bind to the authorization request.
func NewNonce() string { return uuid.NewString() }
