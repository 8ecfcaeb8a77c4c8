package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubVerifier struct {
	identity *Identity
	err      error
	received string
}

func (s *stubVerifier) Verify(tokenStr string) (*Identity, error) {
	s.received = tokenStr
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubVerifier{identity: &Identity{UserID: "usr_1", Email: "cap@example.com", Role: RoleCustomer}}
	authenticator := NewAuthenticator(verifier)

	var seen *Identity
	handler := authenticator.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if verifier.received != "token-123" {
		t.Fatalf("expected verifier to receive token-123, got %q", verifier.received)
	}
	if seen == nil || seen.UserID != "usr_1" {
		t.Fatalf("expected identity in context, got %+v", seen)
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	authenticator := NewAuthenticator(&stubVerifier{identity: &Identity{UserID: "usr_1"}})
	handler := authenticator.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	authenticator := NewAuthenticator(&stubVerifier{err: ErrTokenExpired})
	handler := authenticator.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired, got %v", body["error"])
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	authenticator := NewAuthenticator(&stubVerifier{err: errors.New("garbled")})
	handler := authenticator.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_RoleEnforcement(t *testing.T) {
	verifier := &stubVerifier{identity: &Identity{UserID: "usr_1", Role: RoleCustomer}}
	authenticator := NewAuthenticator(verifier)
	handler := authenticator.RequireAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/caps", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAuth_FallbackRole(t *testing.T) {
	verifier := &stubVerifier{identity: &Identity{UserID: "usr_1"}}
	authenticator := NewAuthenticator(verifier, WithFallbackRole(RoleCustomer))

	var seen *Identity
	handler := authenticator.RequireAuth(RoleCustomer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.Role != RoleCustomer {
		t.Fatalf("expected fallback role applied, got %+v", seen)
	}
}
