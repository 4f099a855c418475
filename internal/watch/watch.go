// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch follows a job's status file as the simulation rewrites it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flowd-org/simctl/internal/control"
	"github.com/flowd-org/simctl/internal/events"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/fsnotify/fsnotify"
)

// DefaultPoll re-reads the status when no file event arrives, for file
// systems that do not deliver them.
const DefaultPoll = 2 * time.Second

// Update is one observed status change.
type Update struct {
	State   job.State      `json:"state"`
	Status  control.Status `json:"status"`
	Percent float64        `json:"percent,omitempty"`
	At      time.Time      `json:"at"`
}

// Options tune Follow.
type Options struct {
	Poll time.Duration
	Sink events.Sink
	// JobID labels emitted events.
	JobID string
}

// Follow reports every change of the job's status until the job is
// COMPLETE or ERROR, or ctx is done. The job directory is watched rather
// than the status file because the simulation may create or replace it.
// An unreadable status file is waited out rather than reported as ERROR.
// It returns the last state seen.
func Follow(ctx context.Context, ctl *control.Controller, opts Options, fn func(Update)) (job.State, error) {
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	logger := logctx.From(ctx)
	dir := ctl.Layout().Dir()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return "", fmt.Errorf("watch %s: %w", dir, err)
	}

	var last Update
	check := func() (bool, error) {
		state, err := ctl.JobState(ctx)
		if err != nil {
			return false, err
		}
		u := Update{State: state, At: time.Now()}
		if state != job.StateUnconfigured && state != job.StateRunnable {
			st, err := ctl.ReadStatus(ctx)
			if err != nil {
				// Caught mid-rewrite; the next event or tick reads it again.
				logger.Debug("status unreadable", "job_dir", dir, "error", err)
				return false, nil
			}
			u.Status = st
			u.Percent, _ = st.PercentDone()
		}
		if u.State == last.State && u.Status.String() == last.Status.String() {
			return state.Terminal(), nil
		}
		if last.State != "" && last.State != state && !last.State.CanTransition(state) {
			logger.Debug("unexpected status transition", "job_dir", dir, "from", last.State, "to", state)
		}
		if last.State != state && opts.Sink != nil {
			opts.Sink.EmitStatus(opts.JobID, string(state), map[string]any{
				"step":  u.Status.CurrentStep,
				"total": u.Status.TotalSteps,
			})
		}
		last = u
		if fn != nil {
			fn(u)
		}
		return state.Terminal(), nil
	}

	if done, err := check(); err != nil || done {
		return last.State, err
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	status := filepath.Base(ctl.Layout().Status())
	for {
		select {
		case <-ctx.Done():
			return last.State, ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return last.State, errors.New("watcher closed")
			}
			if filepath.Base(ev.Name) != status && filepath.Base(ev.Name) != job.SentinelNamelist {
				continue
			}
		case err, ok := <-w.Errors:
			if !ok {
				return last.State, errors.New("watcher closed")
			}
			logger.Warn("watch error", "job_dir", dir, "error", err)
			continue
		case <-ticker.C:
		}
		done, err := check()
		if err != nil {
			return last.State, err
		}
		if done {
			return last.State, nil
		}
	}
}
