package credstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgrid "github.com/authgrid/authgrid"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, New(client, "cred")
}

func testPrincipal(id, email, username string, scope authgrid.Scope) *authgrid.Principal {
	return &authgrid.Principal{
		ID:           id,
		Scope:        scope,
		Email:        email,
		Username:     username,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Status:       authgrid.StatusActive,
		Verification: authgrid.VerificationVerified,
	}
}

func TestCreateAndFind(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	p := testPrincipal("p-1", "Alice@Example.com", "Alice", authgrid.PlatformScope())
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps set on create")
	}

	// Lookup is case-insensitive on both identifiers.
	for _, identifier := range []string{"alice@example.com", "ALICE@EXAMPLE.COM", "alice", "ALICE"} {
		got, err := store.FindByIdentifier(ctx, authgrid.PlatformScope(), identifier)
		if err != nil {
			t.Fatalf("FindByIdentifier(%q) failed: %v", identifier, err)
		}
		if got.ID != "p-1" {
			t.Fatalf("FindByIdentifier(%q) = %q", identifier, got.ID)
		}
	}

	got, err := store.FindByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Email != "Alice@Example.com" || got.Scope.Kind != authgrid.ScopePlatform {
		t.Fatalf("unexpected principal %+v", got)
	}

	if _, err := store.FindByIdentifier(ctx, authgrid.PlatformScope(), "ghost"); !errors.Is(err, authgrid.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestCreateEnforcesPerScopeUniqueness(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testPrincipal("p-1", "alice@example.com", "alice", authgrid.PlatformScope())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Same email in the same scope collides, case-insensitively.
	err := store.Create(ctx, testPrincipal("p-2", "ALICE@example.com", "other", authgrid.PlatformScope()))
	if !errors.Is(err, authgrid.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	// Same username in the same scope collides.
	err = store.Create(ctx, testPrincipal("p-3", "bob@example.com", "alice", authgrid.PlatformScope()))
	if !errors.Is(err, authgrid.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	// The failed creates left nothing behind.
	if _, err := store.FindByIdentifier(ctx, authgrid.PlatformScope(), "bob@example.com"); !errors.Is(err, authgrid.ErrPrincipalNotFound) {
		t.Fatalf("expected no partial record, got %v", err)
	}

	// Same identity in a different scope is fine.
	if err := store.Create(ctx, testPrincipal("p-4", "alice@example.com", "alice", authgrid.ProjectScope("proj-a"))); err != nil {
		t.Fatalf("cross-scope create failed: %v", err)
	}
}

func TestUpdatePasswordHashAndStatus(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testPrincipal("p-1", "alice@example.com", "", authgrid.PlatformScope())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.UpdatePasswordHash(ctx, "p-1", "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}

	until := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := store.UpdateStatus(ctx, "p-1", authgrid.StatusSuspended, until); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := store.FindByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Fatalf("hash not updated: %q", got.PasswordHash)
	}
	if got.Status != authgrid.StatusSuspended || !got.SuspendedUntil.Equal(until) {
		t.Fatalf("status not updated: %+v", got)
	}

	// Lifting the suspension clears the deadline.
	if err := store.UpdateStatus(ctx, "p-1", authgrid.StatusActive, time.Time{}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ = store.FindByID(ctx, "p-1")
	if !got.SuspendedUntil.IsZero() {
		t.Fatalf("expected cleared suspension deadline, got %v", got.SuspendedUntil)
	}

	if err := store.UpdatePasswordHash(ctx, "ghost", "x"); !errors.Is(err, authgrid.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestSetVerification(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	p := testPrincipal("p-1", "alice@example.com", "", authgrid.PlatformScope())
	p.Verification = authgrid.VerificationPending
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.SetVerification(ctx, "p-1", authgrid.VerificationVerified); err != nil {
		t.Fatalf("SetVerification failed: %v", err)
	}

	got, err := store.FindByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Verification != authgrid.VerificationVerified {
		t.Fatalf("verification not updated: %v", got.Verification)
	}
}

func TestUpdateProfileRename(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testPrincipal("p-1", "alice@example.com", "alice", authgrid.PlatformScope())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testPrincipal("p-2", "bob@example.com", "bob", authgrid.PlatformScope())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newName := "Alice L."
	newUsername := "alice2"
	if err := store.UpdateProfile(ctx, "p-1", authgrid.ProfileUpdate{Name: &newName, Username: &newUsername}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	got, err := store.FindByIdentifier(ctx, authgrid.PlatformScope(), "alice2")
	if err != nil {
		t.Fatalf("lookup by new username failed: %v", err)
	}
	if got.ID != "p-1" || got.Name != "Alice L." {
		t.Fatalf("unexpected principal %+v", got)
	}

	// The old username is released.
	if _, err := store.FindByIdentifier(ctx, authgrid.PlatformScope(), "alice"); !errors.Is(err, authgrid.ErrPrincipalNotFound) {
		t.Fatalf("expected old username released, got %v", err)
	}

	// Taking another principal's username fails.
	taken := "bob"
	if err := store.UpdateProfile(ctx, "p-1", authgrid.ProfileUpdate{Username: &taken}); !errors.Is(err, authgrid.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	// Case-only change of one's own username is a no-op, not a collision.
	sameCased := "ALICE2"
	if err := store.UpdateProfile(ctx, "p-1", authgrid.ProfileUpdate{Username: &sameCased}); err != nil {
		t.Fatalf("case-only rename failed: %v", err)
	}
}

func TestLoginHistoryBounded(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testPrincipal("p-1", "alice@example.com", "", authgrid.PlatformScope())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		rec := authgrid.LoginRecord{At: base.Add(time.Duration(i) * time.Minute), IP: "10.0.0.1"}
		if err := store.AppendLoginRecord(ctx, "p-1", rec, 3); err != nil {
			t.Fatalf("AppendLoginRecord failed: %v", err)
		}
	}

	history, err := store.LoginHistory(ctx, "p-1")
	if err != nil {
		t.Fatalf("LoginHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	// Most recent first.
	if !history[0].At.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("expected newest entry first, got %v", history[0].At)
	}
}

func TestTombstone(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testPrincipal("p-1", "alice@example.com", "alice", authgrid.PlatformScope())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Tombstone(ctx, "p-1"); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}

	if _, err := store.FindByID(ctx, "p-1"); !errors.Is(err, authgrid.ErrPrincipalNotFound) {
		t.Fatalf("expected tombstoned record hidden, got %v", err)
	}
	if _, err := store.FindByIdentifier(ctx, authgrid.PlatformScope(), "alice@example.com"); !errors.Is(err, authgrid.ErrPrincipalNotFound) {
		t.Fatalf("expected identity index removed, got %v", err)
	}

	// The identity is free again.
	if err := store.Create(ctx, testPrincipal("p-2", "alice@example.com", "alice", authgrid.PlatformScope())); err != nil {
		t.Fatalf("re-create after tombstone failed: %v", err)
	}

	// Tombstoning twice is a no-op.
	if err := store.Tombstone(ctx, "p-1"); err != nil {
		t.Fatalf("second Tombstone failed: %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	mr.Close()

	err := store.Create(ctx, testPrincipal("p-1", "alice@example.com", "", authgrid.PlatformScope()))
	if !errors.Is(err, authgrid.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if _, err := store.FindByID(ctx, "p-1"); !errors.Is(err, authgrid.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}
