// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"bytes"
	"io"
	"sync"
)

// LineWriter copies simulation output to a log and reports each complete
// line to a Sink. Writers made by OutputPair share one lock so interleaved
// stdout and stderr chunks reach the log whole.
type LineWriter struct {
	sink          Sink
	jobID, launch string
	channel       string
	out           io.Writer
	mu            *sync.Mutex
	pending       []byte
}

// NewLineWriter returns a writer for a single output channel.
func NewLineWriter(sink Sink, jobID, launchID, channel string, out io.Writer) *LineWriter {
	return &LineWriter{sink: sink, jobID: jobID, launch: launchID, channel: channel, out: out, mu: new(sync.Mutex)}
}

// OutputPair returns stdout and stderr writers that share out.
func OutputPair(sink Sink, jobID, launchID string, out io.Writer) (stdout, stderr *LineWriter) {
	stdout = NewLineWriter(sink, jobID, launchID, "stdout", out)
	stderr = NewLineWriter(sink, jobID, launchID, "stderr", out)
	stderr.mu = stdout.mu
	return stdout, stderr
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out != nil && len(p) > 0 {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
	}
	rest := p
	for {
		line, tail, found := bytes.Cut(rest, []byte{'\n'})
		if !found {
			break
		}
		w.pending = append(w.pending, line...)
		w.emit()
		rest = tail
	}
	w.pending = append(w.pending, rest...)
	return len(p), nil
}

// Flush reports a trailing line that had no newline.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit()
	}
}

func (w *LineWriter) emit() {
	line := string(bytes.TrimSuffix(w.pending, []byte{'\r'}))
	w.pending = w.pending[:0]
	if w.sink != nil {
		w.sink.EmitLog(w.jobID, w.launch, w.channel, line)
	}
}
