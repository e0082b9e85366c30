package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatrelay/pkg/identity"
)

const mwTestSecret = "mw-test-secret"

func testHandler(t *testing.T, cfg SecConfig) http.Handler {
	t.Helper()
	verifier, err := identity.NewHS256Verifier(mwTestSecret)
	if err != nil {
		t.Fatalf("NewHS256Verifier: %v", err)
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok && !openPath(r) {
			t.Errorf("identity missing for %s", r.URL.Path)
		}
		w.Header().Set("X-Subject", ident.Subject)
		w.WriteHeader(http.StatusOK)
	})
	return AuthenticateRequestMiddleware(cfg, verifier)(inner)
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(mwTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	h := testHandler(t, SecConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/friends", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401; got %d", w.Code)
	}
}

func TestMiddlewareAdmitsValidToken(t *testing.T) {
	h := testHandler(t, SecConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/friends", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200; got %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Subject"); got != "user-1" {
		t.Fatalf("identity not injected: %q", got)
	}
}

func TestMiddlewareRejectsGarbageToken(t *testing.T) {
	h := testHandler(t, SecConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/friends", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401; got %d", w.Code)
	}
}

func TestMiddlewareOpenPaths(t *testing.T) {
	h := testHandler(t, SecConfig{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("open path %s blocked: %d", path, w.Code)
		}
	}
	// health endpoints are only open for GET
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("POST to health path admitted: %d", w.Code)
	}
}

func TestMiddlewareCORS(t *testing.T) {
	h := testHandler(t, SecConfig{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/chats/conversations", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin header: %q", got)
	}

	// unknown origins get no CORS headers
	req = httptest.NewRequest(http.MethodOptions, "/api/chats/conversations", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin echoed: %q", got)
	}
}

func TestMiddlewareIPWhitelist(t *testing.T) {
	h := testHandler(t, SecConfig{IPWhitelist: []string{"10.1.2.3"}})

	req := httptest.NewRequest(http.MethodGet, "/api/contacts/friends", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-whitelisted ip admitted: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/contacts/friends", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("whitelisted ip blocked: %d", w.Code)
	}
}

func TestMiddlewareRateLimit(t *testing.T) {
	h := testHandler(t, SecConfig{RPS: 1, Burst: 2})
	token := signToken(t, "burster")

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/contacts/friends", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests rejected: %v", codes)
	}
	if codes[3] != http.StatusTooManyRequests {
		t.Fatalf("rate limit never hit: %v", codes)
	}
}

func TestLimiterPoolDefaultsAndIsolation(t *testing.T) {
	p := newLimiterPool(SecConfig{})

	// the default burst admits exactly defaultBurst immediate requests
	allowed := 0
	for i := 0; i < defaultBurst+1; i++ {
		if p.Allow("alice") {
			allowed++
		}
	}
	if allowed != defaultBurst {
		t.Fatalf("default burst admitted %d; want %d", allowed, defaultBurst)
	}

	// other subjects have their own bucket
	if !p.Allow("bob") {
		t.Fatalf("fresh subject throttled by another subject's bucket")
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if bearerToken(req) != "" {
		t.Fatalf("empty header produced token")
	}
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	if bearerToken(req) != "abc.def.ghi" {
		t.Fatalf("bearer token not extracted")
	}
	req.Header.Set("Authorization", "bearer lower-case")
	if bearerToken(req) != "lower-case" {
		t.Fatalf("case-insensitive scheme not accepted")
	}
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if bearerToken(req) != "" {
		t.Fatalf("non-bearer scheme accepted")
	}
}
