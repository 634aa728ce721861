package graphdb

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"vibegraph/internal/crypto"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	key, _ := hex.DecodeString("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	env, err := crypto.New(key)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Open(":memory:", env)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertUserRefreshesMutableFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	created := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	if err := db.UpsertUser(ctx, "u1", "alice", "Alice", created); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertUser(ctx, "u1", "alice_renamed", "Alice R", created); err != nil {
		t.Fatal(err)
	}
	id, err := db.UserIDByUsername(ctx, "alice_renamed")
	if err != nil || id != "u1" {
		t.Fatalf("lookup after rename: %s %v", id, err)
	}
	if _, err := db.UserIDByUsername(ctx, "alice"); err != ErrNotFound {
		t.Fatalf("old username should be gone, got %v", err)
	}
}

func TestRecordVibeReplayIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	out, _, err := db.RecordVibe(ctx, "alice", "bob", "tw1", now)
	if err != nil || out != VibeInserted {
		t.Fatalf("first write: %v %v", out, err)
	}
	// Replaying the identical source event must not write anything.
	out, _, err = db.RecordVibe(ctx, "alice", "bob", "tw1", now)
	if err != nil || out != VibeAlreadyProcessed {
		t.Fatalf("replay: %v %v", out, err)
	}
	n, err := db.VibeCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("edge count after replay: %d %v", n, err)
	}
}

func TestRecordVibeDuplicatePairKeepsOriginal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if out, _, err := db.RecordVibe(ctx, "alice", "bob", "tw1", now); err != nil || out != VibeInserted {
		t.Fatalf("first write: %v %v", out, err)
	}
	// A fresh event for the same pair: first write wins.
	out, original, err := db.RecordVibe(ctx, "alice", "bob", "tw2", now.Add(time.Hour))
	if err != nil || out != VibeDuplicatePair {
		t.Fatalf("duplicate pair: %v %v", out, err)
	}
	if original != "tw1" {
		t.Fatalf("expected original tweet tw1, got %s", original)
	}
	n, _ := db.VibeCount(ctx)
	if n != 1 {
		t.Fatalf("edge count: %d", n)
	}
	// tw2 is claimed even though no edge was written.
	if claimed, err := db.ClaimEvent(ctx, "tw2"); err != nil || claimed {
		t.Fatalf("tw2 should already be claimed: %v %v", claimed, err)
	}
}

func TestClaimEvent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	claimed, err := db.ClaimEvent(ctx, "q1")
	if err != nil || !claimed {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	claimed, err = db.ClaimEvent(ctx, "q1")
	if err != nil || claimed {
		t.Fatalf("second claim should lose: %v %v", claimed, err)
	}
}

func TestActionsBudgetCounters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := db.PutAction(ctx, now, "reply"); err != nil {
		t.Fatal(err)
	}
	n, err := db.CountActionsWithin(ctx, now.Add(-time.Hour), now.Add(time.Hour), "reply")
	if err != nil || n != 1 {
		t.Fatalf("action count: %d %v", n, err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	v, err := db.LoadCursor(ctx, "ingest:hashtag")
	if err != nil || v != "" {
		t.Fatalf("missing cursor: %q %v", v, err)
	}
	if err := db.SaveCursor(ctx, "ingest:hashtag", "2024-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCursor(ctx, "ingest:hashtag", "2024-02-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	v, err = db.LoadCursor(ctx, "ingest:hashtag")
	if err != nil || v != "2024-02-01T00:00:00Z" {
		t.Fatalf("cursor: %q %v", v, err)
	}
}
