package graphdb

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, err := db.CreateSession(ctx, "u1", "alice", "access-1", "refresh-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID == "" {
		t.Fatal("empty session id")
	}
	got, err := db.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" || got.Username != "alice" {
		t.Fatalf("session mismatch: %+v", got)
	}

	if err := db.UpdateSessionTokens(ctx, s.ID, "access-2", "refresh-2"); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetSession(ctx, s.ID)
	if err != nil || got.AccessToken != "access-2" || got.RefreshToken != "refresh-2" {
		t.Fatalf("after update: %+v %v", got, err)
	}

	if err := db.DeleteSession(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetSession(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestExpiredSessionSweep(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	expired, err := db.CreateSession(ctx, "u1", "alice", "a", "", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	live, err := db.CreateSession(ctx, "u2", "bob", "b", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	// An expired session reads as not found even before the sweep.
	if _, err := db.GetSession(ctx, expired.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}

	n, err := db.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("sweep removed %d (%v), want 1", n, err)
	}
	if _, err := db.GetSession(ctx, live.ID); err != nil {
		t.Fatalf("live session gone: %v", err)
	}
}

func TestSessionWithoutRefreshToken(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, err := db.CreateSession(ctx, "u1", "alice", "access-only", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.GetSession(ctx, s.ID)
	if err != nil || got.RefreshToken != "" {
		t.Fatalf("expected empty refresh token: %+v %v", got, err)
	}
}
