package engage

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"vibegraph/internal/config"
	"vibegraph/internal/crypto"
	"vibegraph/internal/store/graphdb"
)

func openTestDB(t *testing.T) *graphdb.DB {
	t.Helper()
	key, _ := hex.DecodeString(strings.Repeat("cd", 32))
	env, err := crypto.New(key)
	if err != nil {
		t.Fatal(err)
	}
	db, err := graphdb.Open(":memory:", env)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestShouldAllowReplyRespectsBudgets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.RepliesConfig{MaxPerHour: 2, MaxPerDay: 3}

	ok, err := ShouldAllowReply(ctx, db, cfg, now)
	if err != nil || !ok {
		t.Fatalf("expected allowed, got %v %v", ok, err)
	}
	_ = RecordReply(ctx, db, now)
	_ = RecordReply(ctx, db, now.Add(5*time.Minute))
	ok, _ = ShouldAllowReply(ctx, db, cfg, now.Add(10*time.Minute))
	if ok {
		t.Fatalf("expected blocked by hourly budget")
	}
	// New hour frees the hourly budget, but the daily cap of 3 blocks.
	_ = RecordReply(ctx, db, now.Add(65*time.Minute))
	ok, _ = ShouldAllowReply(ctx, db, cfg, now.Add(70*time.Minute))
	if ok {
		t.Fatalf("expected blocked by daily budget")
	}
}

func TestZeroBudgetsMeanUnlimited(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = RecordReply(ctx, db, now.Add(time.Duration(i)*time.Minute))
	}
	ok, err := ShouldAllowReply(ctx, db, config.RepliesConfig{}, now.Add(10*time.Minute))
	if err != nil || !ok {
		t.Fatalf("expected unlimited when budgets unset, got %v %v", ok, err)
	}
}
