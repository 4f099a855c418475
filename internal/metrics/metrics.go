// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics records tool activity in a Prometheus registry. The CLI is
// short-lived, so the registry is exported to a node_exporter textfile at
// exit instead of being scraped.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "simctl"

// Registry holds every collector defined by this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	buildInfo = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Tool build information.",
	}, []string{"version"})

	statusReads = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_reads_total",
		Help:      "Status file reads by outcome.",
	}, []string{"outcome"})

	statusReadAttempts = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "status_read_attempts",
		Help:      "Attempts needed per status file read.",
		Buckets:   []float64{1, 2, 5, 10, 50, 100, 500, 1000},
	})

	commands = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Control commands written, by kind.",
	}, []string{"kind"})

	segments = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segments_archived_total",
		Help:      "Run segments recorded in job ledgers.",
	})

	configureDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "configure_duration_seconds",
		Help:      "Time spent generating a job's namelists and inputs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	namelistsWritten = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "namelists_written_total",
		Help:      "Namelist files written.",
	})

	dataFiles = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_files_total",
		Help:      "Data file candidates by resolution outcome.",
	}, []string{"outcome"})

	launches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "launches_total",
		Help:      "Simulation launches by outcome.",
	}, []string{"outcome"})
)

// SetBuildInfo publishes the tool version.
func SetBuildInfo(version string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version).Set(1)
}

// ObserveStatusRead records a status file read.
func ObserveStatusRead(ok bool, attempts int) {
	outcome := "ok"
	if !ok {
		outcome = "unreadable"
	}
	statusReads.WithLabelValues(outcome).Inc()
	statusReadAttempts.Observe(float64(attempts))
}

// RecordCommand counts a written control command.
func RecordCommand(kind string) {
	commands.WithLabelValues(sanitize(kind)).Inc()
}

// RecordSegment counts an archived segment.
func RecordSegment() {
	segments.Inc()
}

// ObserveConfigure records one configure run.
func ObserveConfigure(err error, elapsed time.Duration, namelists int) {
	configureDuration.WithLabelValues(outcomeOf(err)).Observe(elapsed.Seconds())
	namelistsWritten.Add(float64(namelists))
}

// RecordDataFiles counts resolved and unresolved data file candidates.
func RecordDataFiles(copied, unresolved int) {
	dataFiles.WithLabelValues("copied").Add(float64(copied))
	dataFiles.WithLabelValues("unresolved").Add(float64(unresolved))
}

// RecordLaunch counts a launch attempt.
func RecordLaunch(err error) {
	launches.WithLabelValues(outcomeOf(err)).Inc()
}

// WriteTextfile writes the registry in text exposition format to path.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func sanitize(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}
