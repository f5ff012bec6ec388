package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewStore(client, "ag")
}

func testSession(id, principalID string) *Session {
	now := time.Now()
	return &Session{
		SessionID:    id,
		PrincipalID:  principalID,
		ScopeTag:     "platform",
		RefreshHash:  []byte("0123456789abcdef0123456789abcdef"),
		Active:       true,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
		LastActiveAt: now.Unix(),
	}
}

func TestAddAndGet(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s-1", "p-1")
	evicted, err := store.Add(ctx, "platform", sess, time.Hour, 5)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("expected no evictions, got %v", evicted)
	}

	got, err := store.Get(ctx, "platform", "s-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PrincipalID != "p-1" || !got.Live(time.Now()) {
		t.Fatalf("unexpected session %+v", got)
	}

	if _, err := store.Get(ctx, "platform", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddEvictsOldestOverCap(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("s-%d", i)
		evicted, err := store.Add(ctx, "platform", testSession(id, "p-1"), time.Hour, 2)
		if err != nil {
			t.Fatalf("Add %s failed: %v", id, err)
		}
		if i < 3 && len(evicted) != 0 {
			t.Fatalf("unexpected eviction at %d: %v", i, evicted)
		}
		if i == 3 {
			if len(evicted) != 1 || evicted[0] != "s-1" {
				t.Fatalf("expected s-1 evicted, got %v", evicted)
			}
		}
	}

	if _, err := store.Get(ctx, "platform", "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected evicted session gone, got %v", err)
	}

	sessions, err := store.List(ctx, "platform", "p-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "s-2" || sessions[1].SessionID != "s-3" {
		ids := make([]string, len(sessions))
		for i, s := range sessions {
			ids[i] = s.SessionID
		}
		t.Fatalf("expected [s-2 s-3] oldest first, got %v", ids)
	}
}

func TestAddUnlimitedWhenCapIsZero(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		evicted, err := store.Add(ctx, "platform", testSession(fmt.Sprintf("s-%d", i), "p-1"), time.Hour, 0)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if len(evicted) != 0 {
			t.Fatalf("expected no evictions with cap 0, got %v", evicted)
		}
	}

	sessions, err := store.List(ctx, "platform", "p-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 10 {
		t.Fatalf("expected 10 sessions, got %d", len(sessions))
	}
}

func TestRevoke(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "platform", testSession("s-1", "p-1"), time.Hour, 5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "platform", testSession("s-2", "p-1"), time.Hour, 5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := store.Revoke(ctx, "platform", "p-1", "s-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := store.Get(ctx, "platform", "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked session gone, got %v", err)
	}

	sessions, err := store.List(ctx, "platform", "p-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s-2" {
		t.Fatalf("expected only s-2 to remain, got %+v", sessions)
	}
}

func TestRevokeAll(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := store.Add(ctx, "platform", testSession(fmt.Sprintf("s-%d", i), "p-1"), time.Hour, 5); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	// Another principal's session must survive.
	if _, err := store.Add(ctx, "platform", testSession("s-other", "p-2"), time.Hour, 5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := store.RevokeAll(ctx, "platform", "p-1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	sessions, err := store.List(ctx, "platform", "p-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected all sessions gone, got %d", len(sessions))
	}

	if _, err := store.Get(ctx, "platform", "s-other"); err != nil {
		t.Fatalf("expected other principal's session intact, got %v", err)
	}
}

func TestTouchUpdatesLastActive(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s-1", "p-1")
	sess.LastActiveAt = 1000
	if _, err := store.Add(ctx, "platform", sess, time.Hour, 5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	at := time.Now().Add(time.Minute)
	if err := store.Touch(ctx, "platform", "s-1", at); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := store.Get(ctx, "platform", "s-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastActiveAt != at.Unix() {
		t.Fatalf("expected last active %d, got %d", at.Unix(), got.LastActiveAt)
	}
}

func TestScopeIsolation(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "proj:a", testSession("s-1", "p-1"), time.Hour, 5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if _, err := store.Get(ctx, "proj:b", "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-scope lookup to miss, got %v", err)
	}
	if _, err := store.Get(ctx, "proj:a", "s-1"); err != nil {
		t.Fatalf("same-scope lookup failed: %v", err)
	}
}

func TestSessionTTLExpiry(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "platform", testSession("s-1", "p-1"), time.Minute, 5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "platform", "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session gone, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	mr.Close()

	if _, err := store.Add(ctx, "platform", testSession("s-1", "p-1"), time.Hour, 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.Get(ctx, "platform", "s-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSessionLive(t *testing.T) {
	now := time.Now()

	var nilSession *Session
	if nilSession.Live(now) {
		t.Fatal("nil session must not be live")
	}

	sess := testSession("s-1", "p-1")
	if !sess.Live(now) {
		t.Fatal("fresh session must be live")
	}

	sess.Active = false
	if sess.Live(now) {
		t.Fatal("inactive session must not be live")
	}

	sess.Active = true
	if sess.Live(now.Add(2 * time.Hour)) {
		t.Fatal("expired session must not be live")
	}
}
