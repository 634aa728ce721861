package graphdb

import (
	"context"
	"errors"
	"testing"
)

func TestBotTokenLatestWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.LatestBotAccessToken(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	if err := db.SaveBotAccessToken(ctx, "token-old"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveBotAccessToken(ctx, "token-new"); err != nil {
		t.Fatal(err)
	}
	got, err := db.LatestBotAccessToken(ctx)
	if err != nil || got != "token-new" {
		t.Fatalf("latest access token: %q %v", got, err)
	}

	if err := db.SaveBotRefreshToken(ctx, "refresh-1"); err != nil {
		t.Fatal(err)
	}
	got, err = db.LatestBotRefreshToken(ctx)
	if err != nil || got != "refresh-1" {
		t.Fatalf("latest refresh token: %q %v", got, err)
	}
}

func TestStoredTokensAreNotPlaintext(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	const secret = "super_secret_access_token"
	if err := db.SaveBotAccessToken(ctx, secret); err != nil {
		t.Fatal(err)
	}
	row := db.sql.QueryRowContext(ctx, `SELECT ciphertext FROM credentials WHERE kind=?`, KindBotAccess)
	var blob string
	if err := row.Scan(&blob); err != nil {
		t.Fatal(err)
	}
	if blob == secret {
		t.Fatal("token stored in plaintext")
	}
}
