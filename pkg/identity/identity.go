// Package identity verifies bearer tokens and resolves them to chat
// identities. Two verifier implementations exist: OIDC discovery/JWKS
// for hosted identity pools and a shared-secret HS256 verifier for
// local and test deployments.
package identity

import (
	"context"
	"errors"
)

// Identity is the authenticated principal behind a connection or request.
type Identity struct {
	Subject string
	Name    string
	Email   string
}

// DisplayName returns the best human-readable name for the identity.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// ErrInvalidToken is returned for malformed, expired or unsigned tokens.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates a bearer token and returns the identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
