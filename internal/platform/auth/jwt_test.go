package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestTokenManager(t *testing.T, clock func() time.Time) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(TokenManagerConfig{
		Secret:   "a-long-enough-test-secret",
		Issuer:   "slevenback-test",
		TokenTTL: time.Hour,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	return manager
}

func TestTokenManagerRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestTokenManager(t, func() time.Time { return now })

	token, expiresAt, err := manager.Issue(Identity{UserID: "usr_1", Email: "cap@example.com", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	identity, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.UserID != "usr_1" {
		t.Errorf("unexpected user id %s", identity.UserID)
	}
	if identity.Email != "cap@example.com" {
		t.Errorf("unexpected email %s", identity.Email)
	}
	if identity.Role != RoleAdmin {
		t.Errorf("unexpected role %s", identity.Role)
	}
}

func TestTokenManagerRejectsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager := newTestTokenManager(t, clock)

	token, _, err := manager.Issue(Identity{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenManagerRejectsNotYetValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager := newTestTokenManager(t, clock)

	token, _, err := manager.Issue(Identity{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	now = now.Add(-time.Minute)
	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenManagerRejectsWrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager := newTestTokenManager(t, clock)

	other, err := NewTokenManager(TokenManagerConfig{
		Secret:   "a-different-test-secret!",
		Issuer:   "slevenback-test",
		TokenTTL: time.Hour,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	token, _, err := other.Issue(Identity{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenManagerRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	other, err := NewTokenManager(TokenManagerConfig{
		Secret:   "a-long-enough-test-secret",
		Issuer:   "someone-else",
		TokenTTL: time.Hour,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	token, _, err := other.Issue(Identity{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	manager := newTestTokenManager(t, clock)
	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenManager(TokenManagerConfig{Secret: "short", TokenTTL: time.Hour}); err == nil {
		t.Fatal("expected error for short secret")
	}
}
