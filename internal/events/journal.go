// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/flowd-org/simctl/internal/coredb"
	"github.com/flowd-org/simctl/internal/logctx"
)

// JournalSink persists events in the job journal. Append failures are logged
// and never interrupt the operation that produced the event.
type JournalSink struct {
	journal *coredb.Journal
	logger  *slog.Logger
}

// NewJournalSink returns nil when journal is nil.
func NewJournalSink(ctx context.Context, journal *coredb.Journal) *JournalSink {
	if journal == nil {
		return nil
	}
	return &JournalSink{journal: journal, logger: logctx.From(ctx)}
}

func (s *JournalSink) record(ev JobEvent) {
	if s == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode job event", slog.String("job_id", ev.JobID), slog.String("event", ev.Type), slog.String("error", err.Error()))
		return
	}
	if _, err := s.journal.Append(context.Background(), ev.JobID, ev.Type, payload, ev.Timestamp); err != nil {
		s.logger.Error("persist job event", slog.String("job_id", ev.JobID), slog.String("event", ev.Type), slog.String("error", err.Error()))
	}
}

func (s *JournalSink) EmitConfigured(jobID string, data map[string]any) {
	s.record(configureEvent(jobID, data))
}

func (s *JournalSink) EmitCommand(jobID, command string) {
	s.record(commandEvent(jobID, command))
}

func (s *JournalSink) EmitSegment(jobID string, number, start, end int) {
	s.record(segmentEvent(jobID, number, start, end))
}

func (s *JournalSink) EmitStatus(jobID, state string, data map[string]any) {
	s.record(statusEvent(jobID, state, data))
}

func (s *JournalSink) EmitLaunch(jobID, launchID string, pid int) {
	s.record(launchEvent(jobID, launchID, pid))
}

func (s *JournalSink) EmitExit(jobID, launchID string, exitCode int, err error) {
	s.record(exitEvent(jobID, launchID, exitCode, err))
}

// EmitLog is a no-op: process output already lands in run.log.
func (s *JournalSink) EmitLog(jobID, launchID, channel, message string) {}

// Decode parses a journal payload back into an event.
func Decode(entry coredb.JournalEntry) (JobEvent, error) {
	var ev JobEvent
	if err := json.Unmarshal(entry.Payload, &ev); err != nil {
		return JobEvent{}, err
	}
	ev.Sequence = entry.Seq
	return ev, nil
}
