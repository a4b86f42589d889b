package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"kv21/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func testUser() store.User {
	return store.User{ID: "user-123", DisplayName: "Chi", Email: "chi@kv21.local", Role: "editor"}
}

func TestSaveAndLookup(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := s.Save(ctx, "hash-1", testUser(), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	user, err := s.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if user.ID != "user-123" || user.Role != "editor" || user.Email != "chi@kv21.local" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestLookupExpired(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := s.Save(ctx, "hash-exp", testUser(), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := s.Lookup(ctx, "hash-exp"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLookupUnknown(t *testing.T) {
	s, _ := setupTestRedis(t)
	if _, err := s.Lookup(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	s, _ := setupTestRedis(t)
	if err := s.Save(context.Background(), "hash-past", testUser(), time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected error for already expired session")
	}
}

func TestRevoke(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := s.Save(ctx, "hash-rev", testUser(), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Revoke(ctx, "hash-rev"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := s.Lookup(ctx, "hash-rev"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}

	// Revoking again is fine.
	if err := s.Revoke(ctx, "hash-rev"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	a := testUser()
	b := store.User{ID: "user-456", DisplayName: "Phong", Role: "viewer"}
	if err := s.Save(ctx, "hash-a", a, expires); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := s.Save(ctx, "hash-b", b, expires); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	if err := s.Revoke(ctx, "hash-a"); err != nil {
		t.Fatalf("Revoke a: %v", err)
	}

	user, err := s.Lookup(ctx, "hash-b")
	if err != nil {
		t.Fatalf("Lookup b: %v", err)
	}
	if user.ID != "user-456" {
		t.Errorf("expected user-456, got %s", user.ID)
	}
}
