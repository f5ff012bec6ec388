package authgrid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSessionEvictionIsOldestFirst(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store, mutate: func(cfg *Config) {
		cfg.PlatformPolicy.MaxSessions = 2
	}})

	ctx := context.Background()
	p := seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")

	var results []*LoginResult
	for i := 0; i < 3; i++ {
		result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
		results = append(results, result)
	}

	sessions, err := engine.ListSessions(ctx, PlatformScope(), p.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(sessions))
	}

	// The first session was evicted; its refresh token is dead.
	if _, err := engine.Refresh(ctx, results[0].Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected evicted session refresh to fail, got %v", err)
	}
	if _, err := engine.Refresh(ctx, results[2].Tokens.RefreshToken); err != nil {
		t.Fatalf("newest session refresh failed: %v", err)
	}
}

func TestRefreshIssuesNewAccessKeepsRefresh(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	ctx := context.Background()
	seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	pair, err := engine.Refresh(ctx, result.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("expected a new access token")
	}
	if pair.RefreshToken != result.Tokens.RefreshToken {
		t.Fatal("expected the refresh token to remain stable across refreshes")
	}

	claims, err := engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess on refreshed token failed: %v", err)
	}
	if claims.SessionID != result.SessionID {
		t.Fatal("refreshed access token must carry the original session id")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	ctx := context.Background()
	seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, result.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when refreshing with an access token, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when validating a refresh token, got %v", err)
	}
}

func TestRefreshAfterSessionExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, clock := newTestEngine(t, rdb, engineOptions{store: store, mutate: func(cfg *Config) {
		cfg.Token.RefreshTTL = time.Hour
	}})

	ctx := context.Background()
	seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	clock.Advance(61 * time.Minute)

	if _, err := engine.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after session expiry, got %v", err)
	}
}

func TestRefreshAfterDeactivation(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	ctx := context.Background()
	p := seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := store.UpdateStatus(ctx, p.ID, StatusInactive, time.Time{}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	ctx := context.Background()
	seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := engine.Logout(ctx, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh to fail after logout, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, result.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access validation to fail after logout, got %v", err)
	}

	// Logout is idempotent at the caller level: a dead token is just invalid.
	if err := engine.Logout(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on second logout, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	ctx := context.Background()
	p := seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")

	var tokens []TokenPair
	for i := 0; i < 3; i++ {
		result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
		tokens = append(tokens, result.Tokens)
	}

	if err := engine.LogoutAll(ctx, PlatformScope(), p.ID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	for i, pair := range tokens {
		if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("session %d: expected refresh to fail after LogoutAll, got %v", i, err)
		}
	}

	sessions, err := engine.ListSessions(ctx, PlatformScope(), p.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no live sessions, got %d", len(sessions))
	}
}

func TestValidateAccessRejectsGarbage(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, _ := newTestEngine(t, rdb, engineOptions{})

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := engine.ValidateAccess(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestValidateAccessRejectsForeignSecret(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	_, rdb2 := newTestRedis(t)
	otherStore := newMockCredentialStore()
	other, _ := newTestEngine(t, rdb2, engineOptions{store: otherStore, mutate: func(cfg *Config) {
		cfg.Token.AccessSecret = []byte("another-access-secret-0123456789ab")
		cfg.Token.RefreshSecret = []byte("another-refresh-secret-0123456789a")
	}})

	ctx := context.Background()
	seedPrincipal(t, other, otherStore, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := other.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, result.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestRefreshConcurrent(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	engine, _ := newTestEngine(t, rdb, engineOptions{store: store})

	ctx := context.Background()
	seedPrincipal(t, engine, store, PlatformScope(), "alice@example.com", "correct-horse-1")
	result, err := engine.Login(ctx, PlatformScope(), "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// The refresh token is stable across refreshes, so concurrent callers
	// holding the same token must all succeed.
	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Refresh(ctx, result.Tokens.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("concurrent refresh failed: %v", err)
		}
	}

	// The session survived the stampede.
	if _, err := engine.ValidateAccess(ctx, result.Tokens.AccessToken); err != nil {
		t.Fatalf("ValidateAccess after concurrent refresh failed: %v", err)
	}
}
