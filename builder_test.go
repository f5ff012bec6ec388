package authgrid

import (
	"context"
	"errors"
	"testing"
)

func TestBuilderRequiresRedisAndStore(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).WithCredentialStore(newMockCredentialStore()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without credential store")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.Token.AccessSecret = []byte("short")

	_, err := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(newMockCredentialStore()).Build()
	if err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(newMockCredentialStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestEngineWithoutDirectoryRejectsProjectKeys(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, _ := newTestEngine(t, rdb, engineOptions{})

	if _, err := engine.ResolveScope(context.Background(), "pk_something"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady without a directory, got %v", err)
	}
}

func TestBuilderConfigIsDetached(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	b := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(newMockCredentialStore())

	// Mutating the caller's copy after WithConfig must not affect the build.
	cfg.Token.AccessSecret[0] ^= 0xff

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if engine.config.Token.AccessSecret[0] == cfg.Token.AccessSecret[0] {
		t.Fatal("expected builder to hold an independent secret copy")
	}
}
