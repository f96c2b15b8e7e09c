package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	base := []ServiceOption{WithSecrets("access-secret", "refresh-secret")}
	svc, err := NewService(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func registerTestUser(t *testing.T, svc *Service, username string) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "Test User",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func TestServiceRequiresSecrets(t *testing.T) {
	if _, err := NewService(NewInMemory()); err == nil {
		t.Fatal("expected error when secrets are missing")
	}
	if _, err := NewService(NewInMemory(), WithSecrets("same", "same")); err == nil {
		t.Fatal("expected error when secrets are identical")
	}
}

func TestRegisterNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterParams{
		Username: "  Alice ",
		Email:    "Alice@Example.COM",
		FullName: "Alice A.",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Username != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("expected normalized identity, got %q / %q", user.Username, user.Email)
	}
	if user.PasswordHash != "" || user.RefreshTokenHash != "" {
		t.Fatal("register leaked credential fields")
	}

	_, err = svc.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "other@example.com",
		FullName: "Imposter",
		Password: "correct-horse",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// Login yields a non-empty pair and the stored refresh token hash
// matches the issued one.
func TestLoginIssuesPersistedPair(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	pair, loggedIn, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("unexpected user: %s", loggedIn.ID)
	}
	stored, err := store.Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.RefreshTokenHash != hashToken(pair.RefreshToken) {
		t.Fatal("stored refresh token does not match the issued one")
	}
}

func TestLoginAcceptsEmailIdentifier(t *testing.T) {
	svc, _ := newTestService(t)
	registerTestUser(t, svc, "alice")

	if _, _, err := svc.Login(context.Background(), "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login by email: %v", err)
	}
}

// Wrong password is Unauthorized; unknown account is NotFound.
func TestLoginErrorSplit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	registerTestUser(t, svc, "alice")

	if _, _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "correct-horse"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// A freshly minted access token resolves back to its user.
func TestAuthenticateRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	pair, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	resolved, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("token resolved to %s, want %s", resolved.ID, user.ID)
	}
	if resolved.PasswordHash != "" || resolved.RefreshTokenHash != "" {
		t.Fatal("authenticate leaked credential fields")
	}
}

// A token for one user never resolves to another.
func TestAuthenticateIsolation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := registerTestUser(t, svc, "alice")
	bob := registerTestUser(t, svc, "bob")

	pairA, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	resolved, err := svc.Authenticate(ctx, pairA.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if resolved.ID == bob.ID || resolved.ID != alice.ID {
		t.Fatalf("isolation violated: got %s", resolved.ID)
	}
}

// An expired access token is rejected regardless of a valid signature.
func TestAuthenticateRejectsExpired(t *testing.T) {
	current := time.Now().UTC()
	svc, _ := newTestService(t,
		WithAccessTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	ctx := context.Background()
	registerTestUser(t, svc, "alice")

	pair, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticateRejectsRefreshTokenAsAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	registerTestUser(t, svc, "alice")

	pair, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Authenticate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh-as-access, got %v", err)
	}
}

func TestAuthenticateRejectsDeletedAccount(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	pair, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	store.mu.Lock()
	delete(store.byID, user.ID)
	store.mu.Unlock()

	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deleted account, got %v", err)
	}
}

// After rotation, the superseded refresh token always fails.
func TestRefreshRotationInvalidatesOldToken(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	first, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, _, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	if _, _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("superseded token accepted: %v", err)
	}

	stored, err := store.Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.RefreshTokenHash != hashToken(second.RefreshToken) {
		t.Fatal("stored token is not the latest rotation")
	}
}

// An expired refresh token is rejected and leaves stored state untouched.
func TestRefreshRejectsExpiredToken(t *testing.T) {
	current := time.Now().UTC()
	svc, store := newTestService(t,
		WithRefreshTTL(time.Hour),
		WithClock(func() time.Time { return current }),
	)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	pair, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	current = current.Add(2 * time.Hour)

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	stored, err := store.Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.RefreshTokenHash != hashToken(pair.RefreshToken) {
		t.Fatal("failed refresh mutated stored token")
	}
}

func TestRefreshRejectsMissingAndForeignTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	registerTestUser(t, svc, "alice")

	if _, _, err := svc.Refresh(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("malformed token: %v", err)
	}

	// A token signed for a subject that logged out in the meantime.
	pair, _, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	user, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token accepted: %v", err)
	}
}

// Logout is idempotent and leaves the stored token cleared.
func TestLogoutIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	if _, _, err := svc.Login(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	stored, err := store.Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.RefreshTokenHash != "" {
		t.Fatal("refresh token not cleared")
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	if err := svc.ChangePassword(ctx, user.ID, "wrong", "brand-new-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "correct-horse", "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice", "correct-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice", "brand-new-pass"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	if _, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty update accepted: %v", err)
	}
	name := "Alice Prime"
	email := "Prime@Example.com"
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: &name, Email: &email})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.FullName != "Alice Prime" || updated.Email != "prime@example.com" {
		t.Fatalf("unexpected profile: %+v", updated)
	}
}
