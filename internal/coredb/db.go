// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coredb keeps the job journal in a SQLite file in the tool's data
// directory.
package coredb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowd-org/simctl/internal/paths"
	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"

	defaultMaxBytes        = 256 << 20
	defaultJournalMaxBytes = 64 << 20
	fallbackPageSize       = 4096
)

// FileName is the journal database file inside the data directory.
const FileName = "simctl.db"

// connectionPragmas are applied through the DSN so every connection gets them.
var connectionPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(FULL)",
	"foreign_keys(ON)",
	"wal_autocheckpoint(1000)",
}

// Options controls how the journal database is opened.
type Options struct {
	// DataDir is the directory holding the DB file. Empty means paths.DataDir().
	DataDir string
	// MaxBytes caps the database file. Zero means 256 MiB.
	MaxBytes int64
	// JournalMaxBytes caps the event payloads kept. Zero means 64 MiB.
	JournalMaxBytes int64
}

func (o Options) withDefaults() Options {
	if o.DataDir == "" {
		o.DataDir = paths.DataDir()
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	if o.JournalMaxBytes <= 0 {
		o.JournalMaxBytes = defaultJournalMaxBytes
	}
	return o
}

// DB wraps the SQLite connection holding the job journal.
type DB struct {
	sql  *sql.DB
	opts Options
}

// Open creates the data directory if needed, opens the database and brings
// its schema up to date.
func Open(ctx context.Context, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	conn, err := sql.Open(sqliteDriverName, dsn(filepath.Join(opts.DataDir, FileName)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers from concurrent commands in
	// this process; other processes wait on busy_timeout.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := limitSize(ctx, conn, opts.MaxBytes); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := applyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{sql: conn, opts: opts}, nil
}

func dsn(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(filepath.ToSlash(path))
	for i, p := range connectionPragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// limitSize turns the byte budget into max_page_count so SQLite reports
// SQLITE_FULL instead of growing without bound.
func limitSize(ctx context.Context, conn *sql.DB, maxBytes int64) error {
	pageSize := int64(fallbackPageSize)
	if err := conn.QueryRowContext(ctx, "PRAGMA page_size;").Scan(&pageSize); err != nil || pageSize <= 0 {
		pageSize = fallbackPageSize
	}
	pages := maxBytes / pageSize
	if pages <= 0 {
		pages = 1
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA max_page_count=%d;", pages)); err != nil {
		return fmt.Errorf("limit database size: %w", err)
	}
	return nil
}

// Close shuts down the underlying SQLite connection.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// Path returns the database file location.
func (db *DB) Path() string {
	if db == nil {
		return ""
	}
	return filepath.Join(db.opts.DataDir, FileName)
}
