// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestJournalAppendAndIterate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := NewJournal(openTestDB(t), 0)

	ts := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	first, err := journal.Append(ctx, "spinup", "job.configure", []byte(`{"modules":["embm"]}`), ts)
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Seq == 0 {
		t.Fatalf("expected sequence > 0")
	}
	second, err := journal.Append(ctx, "spinup", "job.command", []byte(`{"command":"PAUSE"}`), ts.Add(time.Second))
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected second seq greater than first (first=%d second=%d)", first.Seq, second.Seq)
	}
	if _, err := journal.Append(ctx, "other", "job.command", []byte(`{}`), ts); err != nil {
		t.Fatalf("append other: %v", err)
	}

	var entries []JournalEntry
	if err := journal.ForEach(ctx, "spinup", 0, func(e JournalEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("journal iterate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Timestamp.Equal(ts) || entries[1].EventType != "job.command" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	var after []JournalEntry
	_ = journal.ForEach(ctx, "spinup", first.Seq, func(e JournalEntry) error {
		after = append(after, e)
		return nil
	})
	if len(after) != 1 || after[0].Seq != second.Seq {
		t.Fatalf("expected only the second entry, got %#v", after)
	}

	jobs, err := journal.Jobs(ctx)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].JobID != "spinup" || jobs[0].Events != 2 {
		t.Fatalf("unexpected job summaries: %#v", jobs)
	}
}

func TestJournalEvictsOldestWhenOverLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// Limit well below two payloads to force eviction of the first.
	journal := NewJournal(openTestDB(t), 30)

	if _, err := journal.Append(ctx, "spinup", "job.log", []byte(`{"message":"alpha"}`), time.Now().UTC()); err != nil {
		t.Fatalf("append alpha: %v", err)
	}
	second, err := journal.Append(ctx, "spinup", "job.log", []byte(`{"message":"bravo"}`), time.Now().UTC())
	if err != nil {
		t.Fatalf("append bravo: %v", err)
	}

	earliest, latest, err := journal.Bounds(ctx, "spinup")
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if earliest != second.Seq || latest != second.Seq {
		t.Fatalf("expected bounds to equal second seq %d, got earliest=%d latest=%d", second.Seq, earliest, latest)
	}
}

func TestJournalRejectsBadAppends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := NewJournal(openTestDB(t), 8)
	_, err := journal.Append(ctx, "spinup", "job.log", []byte(`{"msg":"too big"}`), time.Now().UTC())
	if !errors.Is(err, ErrJournalQuotaExceeded) || !IsQuotaExceeded(err) {
		t.Fatalf("expected ErrJournalQuotaExceeded, got %v", err)
	}
	if _, err := journal.Append(ctx, "", "job.log", []byte(`{}`), time.Time{}); err == nil {
		t.Fatalf("expected error for empty job id")
	}
	if _, err := journal.Append(ctx, "spinup", "job.log", nil, time.Time{}); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestNilJournalIsNoop(t *testing.T) {
	t.Parallel()
	var journal *Journal
	if _, err := journal.Append(context.Background(), "x", "y", []byte("z"), time.Time{}); err != nil {
		t.Fatalf("nil append: %v", err)
	}
	if NewJournal(nil, 0) != nil {
		t.Fatalf("expected nil journal for nil db")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	journal := NewJournal(db, 0)
	if _, err := journal.Append(ctx, "spinup", "job.log", []byte(`{"m":1}`), time.Time{}); err != nil {
		t.Fatalf("append: %v", err)
	}

	st, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.SchemaVersion != schemaVersion || st.JournalEvents != 1 || st.JournalBytes != 7 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.MaxBytes <= 0 || st.Evicting {
		t.Fatalf("unexpected limits %+v", st)
	}
	if _, err := os.Stat(st.Path); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	if filepath.Base(st.Path) != FileName {
		t.Fatalf("unexpected db path %s", st.Path)
	}

	var nilDB *DB
	if _, err := nilDB.Stats(ctx); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestJournalForget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	journal := NewJournal(openTestDB(t), 0)
	for _, id := range []string{"spinup", "spinup", "control"} {
		if _, err := journal.Append(ctx, id, "job.command", []byte(`{"command":"PAUSE"}`), time.Time{}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := journal.Forget(ctx, "spinup")
	if err != nil {
		t.Fatalf("forget: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events removed, got %d", n)
	}
	earliest, _, err := journal.Bounds(ctx, "spinup")
	if err != nil || earliest != 0 {
		t.Fatalf("expected no events left for spinup, got earliest=%d err=%v", earliest, err)
	}
	jobs, err := journal.Jobs(ctx)
	if err != nil || len(jobs) != 1 || jobs[0].JobID != "control" {
		t.Fatalf("unexpected jobs after forget: %#v (%v)", jobs, err)
	}
}

func TestReopenKeepsEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := NewJournal(db, 0).Append(ctx, "spinup", "job.configure", []byte(`{}`), time.Time{}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(ctx, Options{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	_, latest, err := NewJournal(db, 0).Bounds(ctx, "spinup")
	if err != nil || latest == 0 {
		t.Fatalf("event lost across reopen: latest=%d err=%v", latest, err)
	}
}
