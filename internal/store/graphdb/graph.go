package graphdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vibegraph/internal/model"
)

// VibeOutcome describes what RecordVibe did.
type VibeOutcome int

const (
	// VibeInserted: a new edge row materialized.
	VibeInserted VibeOutcome = iota
	// VibeDuplicatePair: the event was fresh but the (emitter, sensor)
	// pair already had an edge; first write wins.
	VibeDuplicatePair
	// VibeAlreadyProcessed: the source event id was claimed before and
	// nothing was written.
	VibeAlreadyProcessed
)

// UpsertUser inserts a user or refreshes the mutable fields of an existing
// one. The platform id is the stable key and is never altered.
func (d *DB) UpsertUser(ctx context.Context, id, username, name string, createdAt time.Time) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO users(id, username, name, created_at) VALUES(?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  username=excluded.username,
		  name=excluded.name`,
		id, username, name, createdAt.UTC().Unix())
	return err
}

// UserByID returns the stored user row.
func (d *DB) UserByID(ctx context.Context, id string) (model.User, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id, username, name, created_at FROM users WHERE id=?`, id)
	var u model.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

// UserIDByUsername resolves a username to the stored platform id.
func (d *DB) UserIDByUsername(ctx context.Context, username string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id FROM users WHERE username=? COLLATE NOCASE`, username)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return id, nil
}

// RecordVibe claims the source event and writes the edge in one
// transaction, so a crash between the two can never strand an event.
// When the pair already has an edge, the returned tweet id points at the
// original declaration.
func (d *DB) RecordVibe(ctx context.Context, emitterID, sensorID, tweetID string, createdAt time.Time) (VibeOutcome, string, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	defer tx.Rollback()

	// The claim is an atomic insert; zero rows affected means another
	// tick already processed this event.
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO processed_events(tweet_id) VALUES(?)`, tweetID)
	if err != nil {
		return 0, "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return VibeAlreadyProcessed, "", nil
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO good_vibes(emitter_id, sensor_id, tweet_id, created_at) VALUES(?,?,?,?)
		ON CONFLICT(emitter_id, sensor_id) DO NOTHING`,
		emitterID, sensorID, tweetID, createdAt.UTC().Unix())
	if err != nil {
		return 0, "", err
	}
	inserted, _ := res.RowsAffected()

	var originalTweetID string
	if inserted == 0 {
		row := tx.QueryRowContext(ctx,
			`SELECT tweet_id FROM good_vibes WHERE emitter_id=? AND sensor_id=?`, emitterID, sensorID)
		if err := row.Scan(&originalTweetID); err != nil {
			return 0, "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	if inserted == 0 {
		return VibeDuplicatePair, originalTweetID, nil
	}
	return VibeInserted, "", nil
}

// ClaimEvent marks a source event id as processed. Used by the query
// handlers, which have no accompanying edge write. Returns false when the
// id was already claimed.
func (d *DB) ClaimEvent(ctx context.Context, tweetID string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT OR IGNORE INTO processed_events(tweet_id) VALUES(?)`, tweetID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseEvent drops a claim so the event can be retried on a later tick.
// Used when answering a claimed query fails for a transient reason.
func (d *DB) ReleaseEvent(ctx context.Context, tweetID string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM processed_events WHERE tweet_id=?`, tweetID)
	return err
}

// VibeCount returns the total number of recorded edges.
func (d *DB) VibeCount(ctx context.Context) (int64, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM good_vibes`)
	var n int64
	err := row.Scan(&n)
	return n, err
}

// HasVibe reports whether a direct emitter->sensor edge exists.
func (d *DB) HasVibe(ctx context.Context, emitterID, sensorID string) (bool, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM good_vibes WHERE emitter_id=? AND sensor_id=?)`, emitterID, sensorID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

// PutAction logs an outbound action (e.g. a reply) for budgeting.
func (d *DB) PutAction(ctx context.Context, ts time.Time, typ string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO actions(ts, type) VALUES(?,?)`, ts.UTC().Unix(), typ)
	return err
}

// CountActionsWithin counts actions of a type in [start, end).
func (d *DB) CountActionsWithin(ctx context.Context, start, end time.Time, typ string) (int, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actions WHERE ts>=? AND ts<? AND type=?`,
		start.UTC().Unix(), end.UTC().Unix(), typ)
	var n int
	err := row.Scan(&n)
	return n, err
}

// SaveCursor stores an ingestion cursor value.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO cursors(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}

// LoadCursor returns the stored cursor value, or "" when absent.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}
