// Package audit records authentication events to an external sink.
// Recording is best-effort: a failed write must never fail the login that
// triggered it.
package audit

import (
	"context"
	"time"
)

// LoginEvent describes one successful authentication.
type LoginEvent struct {
	UserID    string
	Provider  string
	Issuer    string
	IP        string
	UserAgent string
	At        time.Time
}

// EventLogger records authentication events. Implementations should be
// non-blocking and best-effort.
type EventLogger interface {
	LogLogin(ctx context.Context, e LoginEvent) error
}

// Nop discards all events.
type Nop struct{}

func (Nop) LogLogin(context.Context, LoginEvent) error { return nil }
