// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAdvance(t *testing.T) {
	before := testutil.ToFloat64(commands.WithLabelValues("pause"))
	RecordCommand("PAUSE")
	if got := testutil.ToFloat64(commands.WithLabelValues("pause")); got != before+1 {
		t.Fatalf("expected pause counter to advance, got %v", got)
	}

	unreadable := testutil.ToFloat64(statusReads.WithLabelValues("unreadable"))
	ObserveStatusRead(false, 1000)
	if got := testutil.ToFloat64(statusReads.WithLabelValues("unreadable")); got != unreadable+1 {
		t.Fatalf("expected unreadable counter to advance, got %v", got)
	}

	failed := testutil.ToFloat64(launches.WithLabelValues("error"))
	RecordLaunch(errors.New("exec format error"))
	if got := testutil.ToFloat64(launches.WithLabelValues("error")); got != failed+1 {
		t.Fatalf("expected launch error counter to advance, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	SetBuildInfo("test")
	ObserveConfigure(nil, 20*time.Millisecond, 3)
	RecordDataFiles(2, 1)
	done := TimeJournal(JournalAppend)
	done(OutcomeQuotaExceeded)
	done(OutcomeOK)
	RecordJournalEviction(10)

	path := filepath.Join(t.TempDir(), "simctl.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(raw)
	for _, want := range []string{
		`simctl_build_info{version="test"} 1`,
		"simctl_configure_duration_seconds_count",
		"simctl_journal_evictions_total",
		`simctl_journal_latency_seconds_count{operation="append",outcome="quota_exceeded"} 1`,
		"simctl_namelists_written_total",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("textfile missing %q:\n%s", want, out)
		}
	}
}
