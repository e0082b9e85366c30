package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates tokens using OIDC discovery and the provider's
// JWKS endpoint.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	issuer   string
}

// NewOIDCVerifier creates a verifier from an OIDC issuer URL. Discovery
// is performed once at construction; pass a bounded context.
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	cfg := &oidc.Config{ClientID: audience}
	if audience == "" {
		cfg.SkipClientIDCheck = true
	}
	return &OIDCVerifier{verifier: provider.Verifier(cfg), issuer: issuerURL}, nil
}

// Verify validates the token signature, expiry and issuer, and maps the
// standard claims onto an Identity.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return Identity{}, fmt.Errorf("parse claims: %w", err)
	}
	ident := Identity{Subject: idToken.Subject}
	if name, ok := raw["name"].(string); ok {
		ident.Name = name
	}
	// Cognito-style pools put the login name in cognito:username.
	if ident.Name == "" {
		if name, ok := raw["cognito:username"].(string); ok {
			ident.Name = name
		}
	}
	if email, ok := raw["email"].(string); ok {
		ident.Email = email
	}
	if ident.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return ident, nil
}
