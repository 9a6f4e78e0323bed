// Package local provides the device-local key-value store backing cart
// snapshots, persisted in a SQLite file so carts survive restarts.
package local

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pastavicenzo/storefront/internal/cartsync"
)

var _ cartsync.LocalStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS cart_blobs (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

// Store is a SQLite-backed blob store keyed by device ID.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path. WAL mode allows
// concurrent reads during writes; the single-connection pool avoids
// SQLITE_BUSY between the per-session engines sharing this store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect sqlite database")
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	return &Store{db: db}, nil
}

// Read returns the blob stored under key, or (nil, nil) when absent.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cart_blobs WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read blob %q", key)
	}
	return value, nil
}

// Write stores the blob under key, replacing any previous value.
func (s *Store) Write(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_blobs (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		key, blob,
	)
	if err != nil {
		return errors.Wrapf(err, "write blob %q", key)
	}
	return nil
}

// Delete removes the blob under key; deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_blobs WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "delete blob %q", key)
	}
	return nil
}

// Ping verifies the database file is still reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
