// Package auth holds the /api barrier and the login endpoints that flip a
// session to authenticated.
//
// How credentials are checked is behind Provider. The shipped providers are
// a bcrypt users file and DenyAll for deployments that have none.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is the only failure a caller may learn about.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

type Identity struct {
	Username string `json:"username"`
}

// Provider verifies a username and password. A wrong user or password both
// return ErrInvalidCredentials; any other error is an operational failure.
type Provider interface {
	Authenticate(ctx context.Context, username, password string) (Identity, error)
}

// DenyAll rejects every login.
type DenyAll struct{}

func (DenyAll) Authenticate(context.Context, string, string) (Identity, error) {
	return Identity{}, ErrInvalidCredentials
}
