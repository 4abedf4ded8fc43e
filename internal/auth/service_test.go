package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/store/sqlstore"
)

func newTestAuthService(t *testing.T) (*Service, *sqlstore.Store) {
	t.Helper()

	st, err := sqlstore.New(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:     []byte("test-secret-change-me"),
		Issuer:     "test",
		Audience:   "test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	return NewService(st, jwtConfig), st
}

func TestRegister_RejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "a@"} {
		if _, err := svc.Register(ctx, email, "password123"); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", email, err)
		}
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc@example.com", "1234567"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_CreatesUserAndProfile(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " alice@example.com ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if user.Role != store.RoleUser || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "password123" {
		t.Fatalf("password must be hashed")
	}

	profile, err := svc.Profile(ctx, user.ID)
	if err != nil || profile == nil {
		t.Fatalf("expected profile, got %+v, %v", profile, err)
	}
	if profile.Locale != "en" {
		t.Fatalf("expected default locale en, got %q", profile.Locale)
	}

	if missing, err := st.GetProfile(ctx, user.ID+100); !errors.Is(err, store.ErrNotFound) || missing != nil {
		t.Fatalf("expected no profile for unknown user, got %+v, %v", missing, err)
	}
	if missing, err := svc.Profile(ctx, user.ID+100); err != nil || missing != nil {
		t.Fatalf("Profile for unknown user = %+v, %v", missing, err)
	}

	// Should collide because the stored email is trimmed.
	if _, err := svc.Register(ctx, "alice@example.com", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginRefreshAuthenticate(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "bob@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	pair, err := svc.Login(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := svc.Authenticate(ctx, pair.Access)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if actor.UserID != user.ID || actor.Role != store.RoleUser {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	// refresh tokens are not accepted where access tokens are expected
	if _, err := svc.Authenticate(ctx, pair.Refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token on refresh, got %v", err)
	}

	next, err := svc.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Access == "" || next.Refresh == "" {
		t.Fatalf("expected a full token pair, got %+v", next)
	}

	// role changes are visible without logging in again
	if err := st.UpdateUserRole(ctx, user.ID, store.RoleAdmin); err != nil {
		t.Fatalf("update role: %v", err)
	}
	actor, err = svc.Authenticate(ctx, next.Access)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if actor.Role != store.RoleAdmin {
		t.Fatalf("expected admin role, got %s", actor.Role)
	}

	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}
