package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// dsnPragmas apply to every connection: WAL so the daemon's engine, outbox
// and read markers can write while the API reads.
const dsnPragmas = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB wraps the SQLite database holding the session's persisted chat state.
type DB struct {
	*sql.DB
	path string
}

// Open creates the database file's directory and connects to it.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// OpenMigrated opens path and applies pending migrations.
func OpenMigrated(path string) (*DB, *MigrateResult, error) {
	db, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	res, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, res, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
