package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Database is a SQLite backed key/value store
type Database struct {
	db *sqlx.DB
}

var _ Store = (*Database)(nil)

// NewDatabase opens the database file and initializes tables
func NewDatabase(dbPath string) (*Database, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	database := &Database{db: db}
	if err := database.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

func (d *Database) createTables() error {
	kvTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	if _, err := d.db.Exec(kvTable); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Get returns the value stored under key
func (d *Database) Get(key string) (string, bool, error) {
	var value string
	err := d.db.Get(&value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value stored under key
func (d *Database) Set(key, value string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("set key %s: %w", key, err)
	}

	slog.Debug("stored value",
		slog.String("key", key),
		slog.Int("bytes", len(value)),
	)
	return nil
}

// Remove deletes the value stored under key
func (d *Database) Remove(key string) error {
	if _, err := d.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove key %s: %w", key, err)
	}
	slog.Debug("removed value", slog.String("key", key))
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
