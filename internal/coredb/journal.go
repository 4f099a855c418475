// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flowd-org/simctl/internal/metrics"
	"github.com/flowd-org/simctl/internal/observability/tracing"
)

// JournalEntry is one persisted job event.
type JournalEntry struct {
	Seq       int64     `json:"seq"`
	JobID     string    `json:"job_id"`
	EventType string    `json:"event_type"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// JobSummary describes the journal footprint of one job.
type JobSummary struct {
	JobID  string    `json:"job_id"`
	Events int64     `json:"events"`
	Last   time.Time `json:"last"`
}

// Journal is an append-only event log keyed by job ID. When the payload
// budget is exceeded the oldest events of any job go first.
type Journal struct {
	db       *sql.DB
	maxBytes int64
	now      func() time.Time
}

// NewJournal returns a journal on db keeping at most maxBytes of payload.
// A non-positive maxBytes means 64 MiB. It returns nil for a nil db, and a
// nil journal ignores appends.
func NewJournal(db *DB, maxBytes int64) *Journal {
	if db == nil {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = defaultJournalMaxBytes
	}
	return &Journal{
		db:       db.sql,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append stores an event for jobID and returns it with its sequence number.
// Eviction and insertion share one transaction.
func (j *Journal) Append(ctx context.Context, jobID, eventType string, payload []byte, ts time.Time) (entry JournalEntry, err error) {
	if j == nil {
		return entry, nil
	}
	ctx, span := tracing.Start(ctx, "coredb.journal.append",
		tracing.PersistDriver(sqliteDriverName),
		tracing.PersistOp("append"),
		tracing.String("job_id", jobID),
		tracing.String("event_type", eventType),
		tracing.Int("payload_bytes", len(payload)),
	)
	observe := metrics.TimeJournal(metrics.JournalAppend)
	defer func() {
		outcome := metrics.OutcomeOK
		switch {
		case IsQuotaExceeded(err):
			outcome = metrics.OutcomeQuotaExceeded
		case err != nil:
			outcome = metrics.OutcomeError
		}
		observe(outcome)
		tracing.End(span, &err, tracing.String("outcome", outcome))
	}()

	switch {
	case jobID == "":
		return entry, errors.New("append journal: job id required")
	case len(payload) == 0:
		return entry, errors.New("append journal: payload required")
	case int64(len(payload)) > j.maxBytes:
		return entry, fmt.Errorf("%w: %d byte event, %d byte budget", ErrJournalQuotaExceeded, len(payload), j.maxBytes)
	}
	if ts.IsZero() {
		ts = j.now()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return entry, fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	evicted, err := j.makeRoom(ctx, tx, int64(len(payload)))
	if err != nil {
		return entry, err
	}
	if evicted > 0 {
		span.SetAttributes(tracing.Int64("evicted_bytes", evicted))
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO job_journal (job_id, event_type, payload, ts) VALUES (?, ?, ?, ?)`,
		jobID, eventType, payload, ts.UnixMilli())
	if err != nil {
		return entry, fmt.Errorf("journal insert: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("journal insert id: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return entry, fmt.Errorf("journal commit: %w", err)
	}

	span.SetAttributes(tracing.Int64("seq", seq))
	return JournalEntry{
		Seq:       seq,
		JobID:     jobID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		Timestamp: ts,
	}, nil
}

// makeRoom deletes the oldest events until need more bytes fit in the
// budget, returning the bytes removed.
func (j *Journal) makeRoom(ctx context.Context, tx *sql.Tx, need int64) (int64, error) {
	var used int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(payload)), 0) FROM job_journal`).Scan(&used); err != nil {
		return 0, fmt.Errorf("journal size lookup: %w", err)
	}
	var evicted int64
	for used+need > j.maxBytes {
		var seq, size int64
		err := tx.QueryRowContext(ctx, `SELECT seq, length(payload) FROM job_journal ORDER BY seq ASC LIMIT 1`).Scan(&seq, &size)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return evicted, fmt.Errorf("journal eviction lookup: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_journal WHERE seq = ?`, seq); err != nil {
			return evicted, fmt.Errorf("journal evict seq %d: %w", seq, err)
		}
		metrics.RecordJournalEviction(size)
		evicted += size
		used -= size
	}
	return evicted, nil
}

// Bounds returns the earliest and latest sequence retained for jobID. A zero
// earliest means nothing is stored.
func (j *Journal) Bounds(ctx context.Context, jobID string) (earliest, latest int64, err error) {
	if j == nil {
		return 0, 0, nil
	}
	err = j.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(seq), 0), COALESCE(MAX(seq), 0) FROM job_journal WHERE job_id = ?`,
		jobID).Scan(&earliest, &latest)
	if err != nil {
		return 0, 0, fmt.Errorf("journal bounds: %w", err)
	}
	return earliest, latest, nil
}

// ForEach calls fn for each event of jobID with seq > afterSeq, oldest
// first. An error from fn stops the iteration and is returned.
func (j *Journal) ForEach(ctx context.Context, jobID string, afterSeq int64, fn func(JournalEntry) error) (err error) {
	if j == nil || fn == nil {
		return nil
	}
	ctx, span := tracing.Start(ctx, "coredb.journal.read",
		tracing.PersistDriver(sqliteDriverName),
		tracing.PersistOp("read"),
		tracing.String("job_id", jobID),
		tracing.Int64("after_seq", afterSeq),
	)
	observe := metrics.TimeJournal(metrics.JournalRead)
	entries := 0
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		observe(outcome)
		tracing.End(span, &err, tracing.Int("entries", entries))
	}()

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, event_type, payload, ts FROM job_journal WHERE job_id = ? AND seq > ? ORDER BY seq ASC`,
		jobID, afterSeq)
	if err != nil {
		return fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e := JournalEntry{JobID: jobID}
		var millis int64
		if err := rows.Scan(&e.Seq, &e.EventType, &e.Payload, &millis); err != nil {
			return fmt.Errorf("journal scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(millis).UTC()
		entries++
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("journal rows: %w", err)
	}
	return nil
}

// Forget deletes every event of jobID and reports how many were removed.
func (j *Journal) Forget(ctx context.Context, jobID string) (int64, error) {
	if j == nil {
		return 0, nil
	}
	res, err := j.db.ExecContext(ctx, `DELETE FROM job_journal WHERE job_id = ?`, jobID)
	if err != nil {
		return 0, fmt.Errorf("journal forget %s: %w", jobID, err)
	}
	return res.RowsAffected()
}

// Jobs summarises the jobs that have retained events, most recent first.
func (j *Journal) Jobs(ctx context.Context) ([]JobSummary, error) {
	if j == nil {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT job_id, COUNT(*), MAX(ts)
FROM job_journal
GROUP BY job_id
ORDER BY MAX(ts) DESC, job_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("journal jobs: %w", err)
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var s JobSummary
		var millis int64
		if err := rows.Scan(&s.JobID, &s.Events, &millis); err != nil {
			return nil, fmt.Errorf("journal jobs scan: %w", err)
		}
		s.Last = time.UnixMilli(millis).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
