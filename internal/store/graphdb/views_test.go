package graphdb

import (
	"context"
	"testing"
	"time"
)

// seedChain inserts alice->bob->carol->dave plus alice->carol.
func seedChain(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, u := range []struct{ id, name string }{
		{"a", "alice"}, {"b", "bob"}, {"c", "carol"}, {"d", "dave"},
	} {
		if err := db.UpsertUser(ctx, u.id, u.name, u.name, now); err != nil {
			t.Fatal(err)
		}
	}
	for i, e := range []struct{ from, to string }{
		{"a", "b"}, {"b", "c"}, {"c", "d"}, {"a", "c"},
	} {
		out, _, err := db.RecordVibe(ctx, e.from, e.to, "seed"+string(rune('0'+i)), now)
		if err != nil || out != VibeInserted {
			t.Fatalf("seed edge %v: %v %v", e, out, err)
		}
	}
}

func TestRefreshAndDegreeScore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedChain(t, db)

	results, err := db.RefreshDegreeViews(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != MaxDegree {
		t.Fatalf("expected %d refresh results, got %d", MaxDegree, len(results))
	}
	for _, r := range results {
		if r.Degree < 1 || r.Degree > MaxDegree || r.Duration < 0 {
			t.Fatalf("bad refresh result: %+v", r)
		}
	}

	// alice->carol: direct edge, plus the two-hop path via bob.
	scores, err := db.DegreeScore(ctx, "a", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if scores != [MaxDegree]int{1, 1, 0} {
		t.Fatalf("alice->carol scores: %v", scores)
	}

	// alice->dave: carol->dave after either path to carol.
	scores, err = db.DegreeScore(ctx, "a", "dave")
	if err != nil {
		t.Fatal(err)
	}
	if scores != [MaxDegree]int{0, 1, 1} {
		t.Fatalf("alice->dave scores: %v", scores)
	}

	ts, err := db.LastViewRefresh(ctx)
	if err != nil || ts.IsZero() {
		t.Fatalf("last refresh: %v %v", ts, err)
	}
}

func TestDegreeScoreEmptyGraph(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := db.RefreshDegreeViews(ctx); err != nil {
		t.Fatal(err)
	}
	scores, err := db.DegreeScore(ctx, "dave", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if scores != [MaxDegree]int{} {
		t.Fatalf("expected zero scores on empty graph, got %v", scores)
	}
}

func TestRefreshIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedChain(t, db)
	for i := 0; i < 2; i++ {
		if _, err := db.RefreshDegreeViews(ctx); err != nil {
			t.Fatal(err)
		}
	}
	scores, err := db.DegreeScore(ctx, "a", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if scores != [MaxDegree]int{1, 1, 0} {
		t.Fatalf("scores changed across rebuilds: %v", scores)
	}
}
