package authgrid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/authgrid/authgrid/internal"
)

func newTestChallengeStore(t *testing.T) *challengeStore {
	t.Helper()
	_, rdb := newTestRedis(t)
	return newChallengeStore(rdb)
}

func saveTestChallenge(t *testing.T, store *challengeStore, kind challengeKind, scopeKey string) (string, [32]byte, *challengeRecord) {
	t.Helper()

	challengeID, err := internal.NewChallengeID()
	if err != nil {
		t.Fatalf("NewChallengeID failed: %v", err)
	}
	secret, err := internal.NewChallengeSecret()
	if err != nil {
		t.Fatalf("NewChallengeSecret failed: %v", err)
	}

	record := &challengeRecord{
		PrincipalID: "p-1",
		SecretHash:  internal.HashChallengeSecret(secret),
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Kind:        kind,
	}
	if err := store.Save(context.Background(), kind, scopeKey, challengeID.String(), record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return challengeID.String(), internal.HashChallengeSecret(secret), record
}

func TestChallengeConsumeMatch(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeReset, "platform")

	record, err := store.Consume(ctx, challengeReset, "platform", id, hash, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.PrincipalID != "p-1" {
		t.Fatalf("unexpected principal %q", record.PrincipalID)
	}

	// Single use.
	if _, err := store.Consume(ctx, challengeReset, "platform", id, hash, 5); err == nil {
		t.Fatal("expected second consume to fail")
	}
}

func TestChallengeConsumeWrongSecretBurnsAttempts(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeReset, "platform")
	var wrong [32]byte
	wrong[0] = 0xff

	if _, err := store.Consume(ctx, challengeReset, "platform", id, wrong, 3); !errors.Is(err, errChallengeSecretMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := store.Consume(ctx, challengeReset, "platform", id, wrong, 3); !errors.Is(err, errChallengeSecretMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	// Third wrong attempt hits the cap and deletes the record.
	if _, err := store.Consume(ctx, challengeReset, "platform", id, wrong, 3); !errors.Is(err, errChallengeAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}

	// The genuine secret is now useless.
	if record, err := store.Consume(ctx, challengeReset, "platform", id, hash, 3); err == nil {
		t.Fatalf("expected burned challenge to be gone, got record %+v", record)
	}
}

func TestChallengeConsumeKindMismatch(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeReset, "platform")

	// A reset challenge cannot be redeemed as a verification challenge, and
	// the wrong-kind key simply does not exist.
	if _, err := store.Consume(ctx, challengeVerifyEmail, "platform", id, hash, 5); err == nil {
		t.Fatal("expected kind-scoped lookup to fail")
	}

	// The original is untouched.
	if _, err := store.Consume(ctx, challengeReset, "platform", id, hash, 5); err != nil {
		t.Fatalf("original challenge should still redeem: %v", err)
	}
}

func TestChallengeScopeIsolation(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeReset, "proj:a")

	if _, err := store.Consume(ctx, challengeReset, "proj:b", id, hash, 5); err == nil {
		t.Fatal("expected cross-scope redemption to fail")
	}
	if _, err := store.Consume(ctx, challengeReset, "proj:a", id, hash, 5); err != nil {
		t.Fatalf("same-scope redemption failed: %v", err)
	}
}

func TestChallengeDelete(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeVerifyEmail, "platform")
	if err := store.Delete(ctx, challengeVerifyEmail, "platform", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Consume(ctx, challengeVerifyEmail, "platform", id, hash, 5); err == nil {
		t.Fatal("expected deleted challenge to be gone")
	}
}

func TestChallengeRecordRoundTrip(t *testing.T) {
	secret, err := internal.NewChallengeSecret()
	if err != nil {
		t.Fatalf("NewChallengeSecret failed: %v", err)
	}
	record := &challengeRecord{
		PrincipalID: "p-42",
		SecretHash:  internal.HashChallengeSecret(secret),
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Attempts:    2,
		Kind:        challengeVerifyEmail,
	}

	data, err := encodeChallengeRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeChallengeRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.PrincipalID != record.PrincipalID ||
		decoded.SecretHash != record.SecretHash ||
		decoded.ExpiresAt != record.ExpiresAt ||
		decoded.Attempts != record.Attempts ||
		decoded.Kind != record.Kind {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, record)
	}

	if _, err := decodeChallengeRecord(data[:3]); err == nil {
		t.Fatal("expected truncated record to fail decoding")
	}
}

func TestChallengeRedisOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := newChallengeStore(rdb)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeReset, "platform")
	mr.Close()

	if _, err := store.Consume(ctx, challengeReset, "platform", id, hash, 5); !errors.Is(err, errChallengeRedisUnavailable) {
		t.Fatalf("expected errChallengeRedisUnavailable, got %v", err)
	}
}

func TestChallengeVerifyKeepsRecord(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	id, hash, _ := saveTestChallenge(t, store, challengeReset, "platform")

	// A match leaves the record in place for repeated verification.
	for i := 0; i < 2; i++ {
		record, err := store.Verify(ctx, challengeReset, "platform", id, hash, 5)
		if err != nil {
			t.Fatalf("Verify %d failed: %v", i, err)
		}
		if record.PrincipalID != "p-1" {
			t.Fatalf("unexpected principal %q", record.PrincipalID)
		}
	}

	// Mismatches still burn attempts toward the cap.
	var wrong [32]byte
	wrong[0] = 0xff
	if _, err := store.Verify(ctx, challengeReset, "platform", id, wrong, 2); !errors.Is(err, errChallengeSecretMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := store.Verify(ctx, challengeReset, "platform", id, wrong, 2); !errors.Is(err, errChallengeAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}

	// The cap deleted the record; a Delete after the fact is a no-op.
	if _, err := store.Verify(ctx, challengeReset, "platform", id, hash, 2); err == nil {
		t.Fatal("expected burned challenge to be gone")
	}
	if err := store.Delete(ctx, challengeReset, "platform", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}
