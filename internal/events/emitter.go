// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events describes job lifecycle events and the sinks that print or
// persist them.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeConfigure = "job.configure"
	TypeCommand   = "job.command"
	TypeSegment   = "job.segment"
	TypeStatus    = "job.status"
	TypeLaunch    = "job.launch"
	TypeExit      = "job.exit"
	TypeLog       = "job.log"
)

type JobEvent struct {
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	JobID     string         `json:"job_id"`
	LaunchID  string         `json:"launch_id,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func configureEvent(jobID string, data map[string]any) JobEvent {
	return JobEvent{Type: TypeConfigure, JobID: jobID, Data: data}
}

func commandEvent(jobID, command string) JobEvent {
	return JobEvent{Type: TypeCommand, JobID: jobID, Data: map[string]any{"command": command}}
}

func segmentEvent(jobID string, number, start, end int) JobEvent {
	return JobEvent{Type: TypeSegment, JobID: jobID, Data: map[string]any{"segment": number, "start": start, "end": end}}
}

func statusEvent(jobID, state string, data map[string]any) JobEvent {
	d := map[string]any{"state": state}
	for k, v := range data {
		d[k] = v
	}
	return JobEvent{Type: TypeStatus, JobID: jobID, Data: d}
}

func launchEvent(jobID, launchID string, pid int) JobEvent {
	return JobEvent{Type: TypeLaunch, JobID: jobID, LaunchID: launchID, Data: map[string]any{"pid": pid}}
}

func exitEvent(jobID, launchID string, exitCode int, err error) JobEvent {
	status := "exited"
	if exitCode != 0 || err != nil {
		status = "failed"
	}
	data := map[string]any{"exit_code": exitCode, "status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	return JobEvent{Type: TypeExit, JobID: jobID, LaunchID: launchID, Data: data}
}

func logEvent(jobID, launchID, channel, message string) JobEvent {
	return JobEvent{Type: TypeLog, JobID: jobID, LaunchID: launchID, Channel: channel, Message: message}
}

// Emitter prints events to a writer as text or JSON lines.
type Emitter struct {
	mu   sync.Mutex
	seq  int64
	out  io.Writer
	json bool
}

func NewEmitter(out io.Writer, json bool) *Emitter {
	if out == nil {
		return nil
	}
	return &Emitter{out: out, json: json}
}

func (e *Emitter) emit(ev JobEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ev.Sequence = e.seq
	ev.Timestamp = time.Now().UTC()

	if e.json {
		payload, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(e.out, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintf(e.out, "%s\n", payload)
		return
	}

	fmt.Fprintf(e.out, "[%d] %s job=%s", ev.Sequence, ev.Type, ev.JobID)
	if ev.LaunchID != "" {
		fmt.Fprintf(e.out, " launch=%s", ev.LaunchID)
	}
	if ev.Channel != "" {
		fmt.Fprintf(e.out, " channel=%s", ev.Channel)
	}
	if ev.Message != "" {
		fmt.Fprintf(e.out, " msg=%s", ev.Message)
	}
	if len(ev.Data) > 0 {
		fmt.Fprintf(e.out, " data={%s}", formatData(ev.Data))
	}
	fmt.Fprintln(e.out)
}

func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s:%v", k, data[k])
	}
	return out
}

func (e *Emitter) EmitConfigured(jobID string, data map[string]any) {
	e.emit(configureEvent(jobID, data))
}

func (e *Emitter) EmitCommand(jobID, command string) {
	e.emit(commandEvent(jobID, command))
}

func (e *Emitter) EmitSegment(jobID string, number, start, end int) {
	e.emit(segmentEvent(jobID, number, start, end))
}

func (e *Emitter) EmitStatus(jobID, state string, data map[string]any) {
	e.emit(statusEvent(jobID, state, data))
}

func (e *Emitter) EmitLaunch(jobID, launchID string, pid int) {
	e.emit(launchEvent(jobID, launchID, pid))
}

func (e *Emitter) EmitExit(jobID, launchID string, exitCode int, err error) {
	e.emit(exitEvent(jobID, launchID, exitCode, err))
}

func (e *Emitter) EmitLog(jobID, launchID, channel, message string) {
	if message == "" {
		return
	}
	e.emit(logEvent(jobID, launchID, channel, message))
}

// NewLaunchID returns an identifier for one execution of the simulation.
func NewLaunchID() string {
	return uuid.NewString()
}
