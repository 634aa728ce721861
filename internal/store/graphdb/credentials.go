package graphdb

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Credential kinds for the shared bot token set.
const (
	KindBotAccess  = "bot_access"
	KindBotRefresh = "bot_refresh"
)

// SaveBotAccessToken encrypts and stores a new bot access token.
// Superseded tokens stay in the table for audit; reads take the newest.
func (d *DB) SaveBotAccessToken(ctx context.Context, plaintext string) error {
	return d.saveCredential(ctx, KindBotAccess, plaintext)
}

// SaveBotRefreshToken encrypts and stores a new bot refresh token.
func (d *DB) SaveBotRefreshToken(ctx context.Context, plaintext string) error {
	return d.saveCredential(ctx, KindBotRefresh, plaintext)
}

func (d *DB) saveCredential(ctx context.Context, kind, plaintext string) error {
	blob, err := d.env.Seal(plaintext)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO credentials(kind, ciphertext, created_at) VALUES(?,?,?)`,
		kind, blob, time.Now().UTC().UnixNano())
	return err
}

// LatestBotAccessToken returns the newest stored bot access token,
// decrypted. ErrNotFound if none has ever been stored.
func (d *DB) LatestBotAccessToken(ctx context.Context) (string, error) {
	return d.latestCredential(ctx, KindBotAccess)
}

// LatestBotRefreshToken returns the newest stored bot refresh token.
func (d *DB) LatestBotRefreshToken(ctx context.Context) (string, error) {
	return d.latestCredential(ctx, KindBotRefresh)
}

func (d *DB) latestCredential(ctx context.Context, kind string) (string, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT ciphertext FROM credentials WHERE kind=? ORDER BY created_at DESC, id DESC LIMIT 1`, kind)
	var blob string
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return d.env.Open(blob)
}
