// Package pgaudit persists authentication events to Postgres.
package pgaudit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/oidcgate/audit"
)

// Store writes login events into the signin_events table. See the
// migrations/postgres package for the schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

// NewStore creates a store against the given schema (default "oidcgate").
func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "oidcgate"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) table() string { return s.schema + ".signin_events" }

// LogLogin records one successful authentication. A nil pool makes this a
// no-op so callers can wire the store unconditionally.
func (s *Store) LogLogin(ctx context.Context, e audit.LoginEvent) error {
	if s == nil || s.pg == nil {
		return nil
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.table()+` (user_id, provider, issuer, ip, user_agent, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`,
		e.UserID, e.Provider, e.Issuer, e.IP, e.UserAgent, at)
	return err
}

// RecentLogins returns the newest events for a user, newest first.
func (s *Store) RecentLogins(ctx context.Context, userID string, limit int) ([]audit.LoginEvent, error) {
	if s == nil || s.pg == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pg.Query(ctx,
		`SELECT user_id, provider, issuer, COALESCE(ip, ''), COALESCE(user_agent, ''), created_at
		 FROM `+s.table()+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.LoginEvent
	for rows.Next() {
		var e audit.LoginEvent
		if err := rows.Scan(&e.UserID, &e.Provider, &e.Issuer, &e.IP, &e.UserAgent, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
