// SPDX-License-Identifier: AGPL-3.0-or-later

package control

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flowd-org/simctl/internal/datafiles"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/metrics"
	"github.com/flowd-org/simctl/internal/observability/tracing"
)

// SegmentError reports a failure while recording a run segment. The ledger
// is provenance, so these errors are never swallowed.
type SegmentError struct {
	Op  string
	Err error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("archive segment: %s: %v", e.Op, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// ArchiveIfNeeded closes the current run segment before the configuration is
// edited. It only acts on PAUSED or COMPLETE jobs, and only when the run has
// advanced past the previous boundary, so ranges never shrink. The new segment runs from the
// previous segment's end (or step 1) to the current step in the status file;
// the current configuration files are copied into segments/<n>.
//
// It returns the recorded segment, or nil when nothing was recorded.
func (c *Controller) ArchiveIfNeeded(ctx context.Context) (seg *job.Segment, err error) {
	state, err := c.JobState(ctx)
	if err != nil {
		return nil, err
	}
	if !state.Archivable() {
		return nil, nil
	}

	ctx, span := tracing.Start(ctx, "control.archive_segment", tracing.JobDir(c.layout.Dir()))
	defer tracing.End(span, &err)

	st, err := c.ReadStatus(ctx)
	if err != nil {
		return nil, &SegmentError{Op: "read status", Err: err}
	}
	if err := os.MkdirAll(c.layout.Segments(), 0o755); err != nil {
		return nil, &SegmentError{Op: "create segments dir", Err: err}
	}

	ledger, err := job.ReadLedger(c.layout.Ledger())
	if err != nil {
		return nil, &SegmentError{Op: "read ledger", Err: err}
	}
	next := job.Segment{Number: 1, Start: 1, End: st.CurrentStep}
	if n := len(ledger); n > 0 {
		last := ledger[n-1]
		next.Number, next.Start = last.Number+1, last.End
	}
	if next.End <= next.Start {
		return nil, nil
	}
	span.SetAttributes(tracing.Segment(next.Number))

	if err := appendLine(c.layout.Ledger(), next.Line()); err != nil {
		return nil, &SegmentError{Op: "append ledger", Err: err}
	}
	dir := c.layout.Segment(next.Number)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &SegmentError{Op: "create segment dir", Err: err}
	}
	for _, name := range job.ArchivedConfigFiles {
		src := filepath.Join(c.layout.ConfigDir(), name)
		if err := datafiles.CopyFile(src, filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &SegmentError{Op: "copy " + name, Err: err}
		}
	}

	logctx.From(ctx).Info("segment archived",
		"job_dir", c.layout.Dir(), "segment", next.Number, "start", next.Start, "end", next.End)
	metrics.RecordSegment()
	if c.sink != nil {
		c.sink.EmitSegment(c.id, next.Number, next.Start, next.End)
	}
	return &next, nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
