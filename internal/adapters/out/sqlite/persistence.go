// Package sqlite implements the persistence adapter on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/zerowrap"
	_ "modernc.org/sqlite"

	"github.com/bnema/ocistore/internal/boundaries/out"
)

// DBFilename is the database file created under the storage root.
const DBFilename = "ocistore.db"

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB
)`

// Persistence implements out.Persistence with a single key/value table.
type Persistence struct {
	db  *sql.DB
	log zerowrap.Logger
}

// NewPersistence opens (and bootstraps if needed) the database at dbPath.
func NewPersistence(ctx context.Context, dbPath string, log zerowrap.Logger) (*Persistence, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to ensure DB directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to bootstrap DB: %w", err)
		}
	}

	log.Info().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "sqlite").
		Str(zerowrap.FieldPath, dbPath).
		Msg("sqlite persistence initialized")

	return &Persistence{db: db, log: log}, nil
}

// Read returns the bytes stored under key.
func (p *Persistence) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Write upserts data under key.
func (p *Persistence) Write(ctx context.Context, key string, data []byte) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, data)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	p.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "sqlite").
		Str(zerowrap.FieldPath, key).
		Int(zerowrap.FieldSize, len(data)).
		Msg("key written")

	return nil
}

// Delete removes key.
func (p *Persistence) Delete(ctx context.Context, key string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if n == 0 {
		return out.ErrKeyNotFound
	}

	p.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "sqlite").
		Str(zerowrap.FieldPath, key).
		Msg("key deleted")

	return nil
}

// Exists reports whether key is present.
func (p *Persistence) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM kv WHERE key = ?", key).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the underlying database.
func (p *Persistence) Close() error {
	return p.db.Close()
}
