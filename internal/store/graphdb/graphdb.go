package graphdb

import (
	"database/sql"
	"errors"

	"vibegraph/internal/crypto"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a queried row does not exist. It is distinct
// from crypto.ErrDecryptionFailed: a missing credential can be provisioned,
// an unreadable one requires re-authorization.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database holding the vibe graph, processed-event
// claims, encrypted credentials, web sessions, and degree views.
type DB struct {
	sql *sql.DB
	env *crypto.Envelope
}

// Open opens (creating if needed) the database at path and runs migrations.
// The envelope encrypts all token material before it touches disk.
func Open(path string, env *crypto.Envelope) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d, env: env}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS users (
	  id TEXT PRIMARY KEY,
	  username TEXT NOT NULL,
	  name TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	CREATE TABLE IF NOT EXISTS good_vibes (
	  emitter_id TEXT NOT NULL,
	  sensor_id TEXT NOT NULL,
	  tweet_id TEXT NOT NULL,
	  created_at INTEGER NOT NULL,
	  PRIMARY KEY (emitter_id, sensor_id)
	);
	CREATE TABLE IF NOT EXISTS processed_events (
	  tweet_id TEXT PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS credentials (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  kind TEXT NOT NULL,
	  ciphertext TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_kind ON credentials(kind, created_at);
	CREATE TABLE IF NOT EXISTS web_sessions (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  username TEXT NOT NULL,
	  access_token TEXT NOT NULL,
	  refresh_token TEXT,
	  created_at INTEGER NOT NULL,
	  expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS actions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts, type);
	CREATE TABLE IF NOT EXISTS vibe_degree_1 (
	  emitter_id TEXT NOT NULL,
	  sensor_id TEXT NOT NULL,
	  path_count INTEGER NOT NULL,
	  PRIMARY KEY (emitter_id, sensor_id)
	);
	CREATE TABLE IF NOT EXISTS vibe_degree_2 (
	  emitter_id TEXT NOT NULL,
	  sensor_id TEXT NOT NULL,
	  path_count INTEGER NOT NULL,
	  PRIMARY KEY (emitter_id, sensor_id)
	);
	CREATE TABLE IF NOT EXISTS vibe_degree_3 (
	  emitter_id TEXT NOT NULL,
	  sensor_id TEXT NOT NULL,
	  path_count INTEGER NOT NULL,
	  PRIMARY KEY (emitter_id, sensor_id)
	);
	CREATE TABLE IF NOT EXISTS view_refresh_metrics (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  degree INTEGER NOT NULL,
	  refreshed_at INTEGER NOT NULL,
	  duration_ms INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}
