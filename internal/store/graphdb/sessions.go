package graphdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is a web-login session. Token fields hold plaintext only in
// memory; the stored rows are always encrypted.
type Session struct {
	ID           string
	UserID       string
	Username     string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// CreateSession persists a new session with an unguessable id and
// encrypted tokens. refreshToken may be empty.
func (d *DB) CreateSession(ctx context.Context, userID, username, accessToken, refreshToken string, ttl time.Duration) (Session, error) {
	now := time.Now().UTC()
	s := Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Username:     username,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	encAccess, err := d.env.Seal(accessToken)
	if err != nil {
		return Session{}, err
	}
	var encRefresh sql.NullString
	if refreshToken != "" {
		blob, err := d.env.Seal(refreshToken)
		if err != nil {
			return Session{}, err
		}
		encRefresh = sql.NullString{String: blob, Valid: true}
	}
	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO web_sessions(id, user_id, username, access_token, refresh_token, created_at, expires_at)
		 VALUES(?,?,?,?,?,?,?)`,
		s.ID, userID, username, encAccess, encRefresh, now.Unix(), s.ExpiresAt.Unix())
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// GetSession loads and decrypts a session by id. Expired sessions are
// reported as ErrNotFound; an undecryptable token surfaces as
// crypto.ErrDecryptionFailed and the caller must force a re-login.
func (d *DB) GetSession(ctx context.Context, id string) (Session, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, user_id, username, access_token, refresh_token, created_at, expires_at
		 FROM web_sessions WHERE id=?`, id)
	var s Session
	var encAccess string
	var encRefresh sql.NullString
	var createdAt, expiresAt int64
	if err := row.Scan(&s.ID, &s.UserID, &s.Username, &encAccess, &encRefresh, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if !s.ExpiresAt.After(time.Now().UTC()) {
		return Session{}, ErrNotFound
	}
	access, err := d.env.Open(encAccess)
	if err != nil {
		return Session{}, err
	}
	s.AccessToken = access
	if encRefresh.Valid {
		refresh, err := d.env.Open(encRefresh.String)
		if err != nil {
			return Session{}, err
		}
		s.RefreshToken = refresh
	}
	return s, nil
}

// UpdateSessionTokens replaces a session's tokens after a refresh.
func (d *DB) UpdateSessionTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	encAccess, err := d.env.Seal(accessToken)
	if err != nil {
		return err
	}
	var encRefresh sql.NullString
	if refreshToken != "" {
		blob, err := d.env.Seal(refreshToken)
		if err != nil {
			return err
		}
		encRefresh = sql.NullString{String: blob, Valid: true}
	}
	res, err := d.sql.ExecContext(ctx,
		`UPDATE web_sessions SET access_token=?, refresh_token=? WHERE id=?`,
		encAccess, encRefresh, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session (explicit logout).
func (d *DB) DeleteSession(ctx context.Context, id string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM web_sessions WHERE id=?`, id)
	return err
}

// DeleteExpiredSessions sweeps sessions that expired at or before now and
// returns how many were removed.
func (d *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM web_sessions WHERE expires_at<=?`, now.UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
