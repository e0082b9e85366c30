package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestHS256VerifyValid(t *testing.T) {
	v, err := NewHS256Verifier(testSecret)
	if err != nil {
		t.Fatalf("NewHS256Verifier: %v", err)
	}
	raw := signHS256(t, jwt.MapClaims{
		"sub":   "user-1",
		"name":  "Alice",
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	ident, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.Subject != "user-1" || ident.Name != "Alice" || ident.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", ident)
	}
	if ident.DisplayName() != "Alice" {
		t.Fatalf("DisplayName: %s", ident.DisplayName())
	}
}

func TestHS256VerifyExpired(t *testing.T) {
	v, _ := NewHS256Verifier(testSecret)
	raw := signHS256(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken; got %v", err)
	}
}

func TestHS256VerifyWrongSecret(t *testing.T) {
	v, _ := NewHS256Verifier("other-secret")
	raw := signHS256(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken; got %v", err)
	}
}

func TestHS256VerifyWrongMethod(t *testing.T) {
	v, _ := NewHS256Verifier(testSecret)
	// unsigned token must never pass
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken; got %v", err)
	}
}

func TestHS256VerifyMissingSub(t *testing.T) {
	v, _ := NewHS256Verifier(testSecret)
	raw := signHS256(t, jwt.MapClaims{"name": "NoSub", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken; got %v", err)
	}
}

func TestNewHS256VerifierRequiresSecret(t *testing.T) {
	if _, err := NewHS256Verifier(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	cases := []struct {
		ident Identity
		want  string
	}{
		{Identity{Subject: "u1", Name: "Alice", Email: "a@x"}, "Alice"},
		{Identity{Subject: "u1", Email: "a@x"}, "a@x"},
		{Identity{Subject: "u1"}, "u1"},
	}
	for _, c := range cases {
		if got := c.ident.DisplayName(); got != c.want {
			t.Fatalf("DisplayName(%+v) = %s; want %s", c.ident, got, c.want)
		}
	}
}
