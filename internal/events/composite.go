// SPDX-License-Identifier: AGPL-3.0-or-later
package events

// Sink consumes job lifecycle events.
type Sink interface {
	EmitConfigured(jobID string, data map[string]any)
	EmitCommand(jobID, command string)
	EmitSegment(jobID string, number, start, end int)
	EmitStatus(jobID, state string, data map[string]any)
	EmitLaunch(jobID, launchID string, pid int)
	EmitExit(jobID, launchID string, exitCode int, err error)
	EmitLog(jobID, launchID, channel, message string)
}

// multiSink delivers every event to each member in order.
type multiSink []Sink

// NewCompositeSink combines sinks, skipping nil ones (typed nil *Emitter and
// *JournalSink included). It returns nil when nothing is left and the sink
// itself when only one is.
func NewCompositeSink(sinks ...Sink) Sink {
	var live multiSink
	for _, s := range sinks {
		if present(s) {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return nil
	}
	if len(live) == 1 {
		return live[0]
	}
	return live
}

func present(s Sink) bool {
	switch v := s.(type) {
	case nil:
		return false
	case *Emitter:
		return v != nil
	case *JournalSink:
		return v != nil
	}
	return true
}

func (m multiSink) each(fn func(Sink)) {
	for _, s := range m {
		fn(s)
	}
}

func (m multiSink) EmitConfigured(jobID string, data map[string]any) {
	m.each(func(s Sink) { s.EmitConfigured(jobID, data) })
}

func (m multiSink) EmitCommand(jobID, command string) {
	m.each(func(s Sink) { s.EmitCommand(jobID, command) })
}

func (m multiSink) EmitSegment(jobID string, number, start, end int) {
	m.each(func(s Sink) { s.EmitSegment(jobID, number, start, end) })
}

func (m multiSink) EmitStatus(jobID, state string, data map[string]any) {
	m.each(func(s Sink) { s.EmitStatus(jobID, state, data) })
}

func (m multiSink) EmitLaunch(jobID, launchID string, pid int) {
	m.each(func(s Sink) { s.EmitLaunch(jobID, launchID, pid) })
}

func (m multiSink) EmitExit(jobID, launchID string, exitCode int, err error) {
	m.each(func(s Sink) { s.EmitExit(jobID, launchID, exitCode, err) })
}

func (m multiSink) EmitLog(jobID, launchID, channel, message string) {
	m.each(func(s Sink) { s.EmitLog(jobID, launchID, channel, message) })
}
