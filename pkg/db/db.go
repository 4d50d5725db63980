package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// One connection serialises writers and keeps per-connection pragmas
	// such as foreign_keys in effect for every statement.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// WAL lets analysis reads proceed while an import writes.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA foreign_keys=ON;", // waypoints cascade with their flight path
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	d := &DB{db}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			role TEXT NOT NULL,
			lon REAL NOT NULL,
			lat REAL NOT NULL,
			elevation REAL DEFAULT 0,
			mount_offset REAL DEFAULT 0,
			range_m REAL DEFAULT 0,
			source TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS flight_paths (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS waypoints (
			path_id INTEGER NOT NULL REFERENCES flight_paths(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			lon REAL NOT NULL,
			lat REAL NOT NULL,
			elevation REAL DEFAULT 0,
			PRIMARY KEY (path_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Migration: Add source if missing (pre-import databases)
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('stations') WHERE name='source'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE stations ADD COLUMN source TEXT DEFAULT ''"); err != nil {
			return fmt.Errorf("failed to add source column: %w", err)
		}
	}
	if _, err := d.Exec(`CREATE INDEX IF NOT EXISTS idx_stations_source ON stations(source);`); err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}

	return nil
}
