// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stats summarises the journal database footprint.
type Stats struct {
	Path            string `json:"path" yaml:"path"`
	SchemaVersion   int64  `json:"schema_version" yaml:"schema_version"`
	BytesUsed       int64  `json:"bytes_used" yaml:"bytes_used"`
	MaxBytes        int64  `json:"max_bytes" yaml:"max_bytes"`
	JournalEvents   int64  `json:"journal_events" yaml:"journal_events"`
	JournalBytes    int64  `json:"journal_bytes" yaml:"journal_bytes"`
	JournalMaxBytes int64  `json:"journal_max_bytes" yaml:"journal_max_bytes"`
	// Evicting is set once the journal has reached its byte budget.
	Evicting bool `json:"evicting" yaml:"evicting"`
}

// Stats inspects the database and journal sizes.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	if db == nil || db.sql == nil {
		return Stats{}, errors.New("coredb: database not initialised")
	}
	conn := db.sql
	st := Stats{Path: db.Path(), JournalMaxBytes: db.opts.JournalMaxBytes}

	var pageSize, pageCount, maxPages int64
	for _, p := range []struct {
		name string
		dst  *int64
	}{
		{"page_size", &pageSize},
		{"page_count", &pageCount},
		{"max_page_count", &maxPages},
		{"user_version", &st.SchemaVersion},
	} {
		if err := pragmaInt(ctx, conn, p.name, p.dst); err != nil {
			return st, err
		}
	}
	st.BytesUsed = pageCount * pageSize
	st.MaxBytes = maxPages * pageSize

	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(length(payload)), 0) FROM job_journal`,
	).Scan(&st.JournalEvents, &st.JournalBytes); err != nil {
		return st, fmt.Errorf("coredb: journal inspection: %w", err)
	}
	st.Evicting = st.JournalMaxBytes > 0 && st.JournalBytes >= st.JournalMaxBytes
	return st, nil
}

func pragmaInt(ctx context.Context, conn *sql.DB, name string, dst *int64) error {
	var v sql.NullInt64
	if err := conn.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
		return fmt.Errorf("coredb: read %s: %w", name, err)
	}
	*dst = v.Int64
	return nil
}
