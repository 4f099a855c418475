// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Journal operations and their outcomes, used as label values.
const (
	JournalAppend = "append"
	JournalRead   = "read"

	OutcomeOK            = "ok"
	OutcomeError         = "error"
	OutcomeQuotaExceeded = "quota_exceeded"
)

var (
	journalLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "latency_seconds",
		Help:      "Journal operation latency by operation and outcome.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation", "outcome"})

	journalEvictions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "evictions_total",
		Help:      "Journal entries dropped to stay under the size quota.",
	})

	journalEvictedBytes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "evicted_bytes_total",
		Help:      "Payload bytes dropped to stay under the size quota.",
	})
)

func init() {
	for _, o := range []string{OutcomeOK, OutcomeError, OutcomeQuotaExceeded} {
		journalLatency.WithLabelValues(JournalAppend, o)
	}
	for _, o := range []string{OutcomeOK, OutcomeError} {
		journalLatency.WithLabelValues(JournalRead, o)
	}
}

// TimeJournal starts timing op. The returned func records the latency under
// outcome; calls after the first are ignored.
func TimeJournal(op string) func(outcome string) {
	start := time.Now()
	var once sync.Once
	return func(outcome string) {
		once.Do(func() {
			if outcome = sanitize(outcome); outcome == "" {
				outcome = OutcomeOK
			}
			journalLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
		})
	}
}

// RecordJournalEviction counts one evicted entry of the given payload size.
func RecordJournalEviction(bytes int64) {
	journalEvictions.Inc()
	journalEvictedBytes.Add(float64(bytes))
}
