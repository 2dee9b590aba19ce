// SPDX-License-Identifier: MIT

// Package storage implements the embedded SQLite-backed cache: the
// cached_data and pending_requests tables, their indexes, and the
// store/retrieve/queue/cleanup operations built on them.
//
// Adapted from the engine's sqlite persistence layer (WAL-mode DSN
// construction, pooled *sql.DB, integrity verification), generalized
// from a single-purpose recordings index to the cache's two-table
// schema and PRAGMA set.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// schemaMu guards schema creation process-wide.
var schemaMu sync.Mutex

// Config defines the SQLite connection parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  30 * time.Second,
		MaxOpenConns: 1,
	}
}

// Open initializes a pooled SQLite connection with the required PRAGMAs
// (WAL journaling, NORMAL synchronous, a 10000-page cache) and ensures
// the schema exists.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=cache_size(10000)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// VerifyIntegrity runs PRAGMA quick_check (mode="quick") or
// integrity_check (mode="full") against a read-only handle.
func VerifyIntegrity(path string, mode string) ([]string, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open for verify: %w", err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check;"
	if mode == "full" {
		pragma = "PRAGMA integrity_check;"
	}
	rows, err := db.Query(pragma)
	if err != nil {
		return nil, fmt.Errorf("storage: integrity pragma: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("storage: scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if len(results) == 1 && strings.ToLower(results[0]) == "ok" {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS cached_data (
	url TEXT PRIMARY KEY,
	cache_key TEXT NOT NULL,
	identifier TEXT NOT NULL,
	data_type TEXT NOT NULL,
	provider TEXT NOT NULL,
	data_value BLOB NOT NULL,
	metadata TEXT,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER,
	data_size INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cached_data_identifier_type ON cached_data(identifier, data_type);
CREATE INDEX IF NOT EXISTS idx_cached_data_cache_key ON cached_data(cache_key);
CREATE INDEX IF NOT EXISTS idx_cached_data_provider ON cached_data(provider);
CREATE INDEX IF NOT EXISTS idx_cached_data_expires_at ON cached_data(expires_at);
CREATE INDEX IF NOT EXISTS idx_cached_data_last_accessed ON cached_data(last_accessed);

CREATE TABLE IF NOT EXISTS pending_requests (
	request_id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	request_key TEXT NOT NULL,
	params TEXT NOT NULL,
	priority INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt INTEGER,
	status TEXT NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_pending_requests_provider ON pending_requests(provider);
CREATE INDEX IF NOT EXISTS idx_pending_requests_priority ON pending_requests(priority);
CREATE INDEX IF NOT EXISTS idx_pending_requests_status ON pending_requests(status);
CREATE INDEX IF NOT EXISTS idx_pending_requests_created_at ON pending_requests(created_at);
`

func ensureSchema(db *sql.DB) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}
