package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Verifier validates tokens signed with a shared HS256 secret.
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier creates a verifier for local/dev deployments.
func NewHS256Verifier(secret string) (*HS256Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("hs256 secret is required")
	}
	return &HS256Verifier{secret: []byte(secret)}, nil
}

// Verify validates the signature and expiry and maps the claims onto an
// Identity.
func (v *HS256Verifier) Verify(_ context.Context, token string) (Identity, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unsupported claim type %T", ErrInvalidToken, tok.Claims)
	}
	var ident Identity
	if sub, ok := raw["sub"].(string); ok {
		ident.Subject = sub
	}
	if name, ok := raw["name"].(string); ok {
		ident.Name = name
	}
	if email, ok := raw["email"].(string); ok {
		ident.Email = email
	}
	if ident.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return ident, nil
}
