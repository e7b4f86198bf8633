// Package session issues and refreshes the signed session cookie and keeps
// the matching records in a Store.
//
// Every request passing the gate carries a Record in its context, fresh or
// refreshed. Expiry is rolling: each admitted request pushes ExpiresAt to
// now plus the TTL.
package session

import (
	"errors"
	"time"

	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// DefaultTTL is the rolling lifetime of a session.
const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrNoID         = errors.New("session: empty id")
	ErrBadLifetime  = errors.New("session: expiry not after creation")
	ErrUserNotAuthd = errors.New("session: user set on unauthenticated record")
)

// Record is the server-side state behind a session cookie.
type Record struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Authenticated bool      `json:"authenticated"`
	User          string    `json:"user,omitempty"`
}

// Validate checks the invariants a store relies on.
func (r Record) Validate() error {
	if r.ID == "" {
		return xerrors.WithStack(ErrNoID)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return xerrors.Wrapf(ErrBadLifetime, "session %s", r.ID)
	}
	if !r.Authenticated && r.User != "" {
		return xerrors.Wrapf(ErrUserNotAuthd, "session %s", r.ID)
	}
	return nil
}

// Expired reports whether the record is no longer usable at now.
func (r Record) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }
