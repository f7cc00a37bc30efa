package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/errs"
)

func newTestAuth(t *testing.T) (*AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	auth := NewAuthService(store, "test-secret-key-for-jwt")
	return auth, store
}

func TestJWTRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, 42, "admin@example.com", 1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.AdminID != 42 {
		t.Errorf("AdminID: got %d, want 42", principal.AdminID)
	}
	if principal.Email != "admin@example.com" {
		t.Errorf("Email: got %q, want %q", principal.Email, "admin@example.com")
	}
}

func TestJWTExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, 1, "test@test.com", -1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	_, err = auth.ValidateJWT(ctx, token)
	if !errs.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.ValidateJWT(context.Background(), "garbage.token.here")
	if err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestAPIKeyValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	raw, key, err := auth.CreateAPIKey(ctx, "ci", 0)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if !strings.HasPrefix(raw, KeyPrefix) {
		t.Errorf("raw key %q lacks prefix %q", raw, KeyPrefix)
	}
	if !strings.HasPrefix(raw, key.KeyPrefix) {
		t.Errorf("stored prefix %q is not a prefix of the key", key.KeyPrefix)
	}

	principal, err := auth.ValidateAPIKey(ctx, raw)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if principal.KeyID != key.ID {
		t.Errorf("KeyID: got %d, want %d", principal.KeyID, key.ID)
	}

	_, err = auth.ValidateAPIKey(ctx, "wrong_key")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAPIKeyRevoked(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	raw, key, err := auth.CreateAPIKey(ctx, "revoke-test", 0)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := store.RevokeAPIKeyByPrefix(ctx, key.KeyPrefix); err != nil {
		t.Fatalf("RevokeAPIKeyByPrefix: %v", err)
	}

	_, err = auth.ValidateAPIKey(ctx, raw)
	if err != ErrKeyRevoked {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestAPIKeyWithoutTTLNeverExpires(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	raw, _, err := auth.CreateAPIKey(ctx, "short-lived", -time.Minute)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, raw); err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
}

func TestLogin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateAdmin(ctx, "ops@example.com", "Ops", "short"); !errs.Is(err, errs.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for short password, got %v", err)
	}

	admin, err := auth.CreateAdmin(ctx, "ops@example.com", "Ops", "correct horse")
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if admin.PasswordHash == "correct horse" {
		t.Fatal("password stored in clear text")
	}

	token, got, err := auth.Login(ctx, "ops@example.com", "correct horse", time.Hour)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != admin.ID {
		t.Errorf("admin ID: got %d, want %d", got.ID, admin.ID)
	}
	p, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if p.Email != "ops@example.com" {
		t.Errorf("Email: got %q", p.Email)
	}

	if _, _, err := auth.Login(ctx, "ops@example.com", "wrong password", time.Hour); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := auth.Login(ctx, "nobody@example.com", "whatever1", time.Hour); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown admin, got %v", err)
	}
}
