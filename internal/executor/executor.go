// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor starts the simulation executable inside a job directory.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/flowd-org/simctl/internal/control"
	"github.com/flowd-org/simctl/internal/events"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/metrics"
	"github.com/flowd-org/simctl/internal/paths"
)

// ErrExecutableMissing is returned when the model has not been built.
var ErrExecutableMissing = errors.New("simulation executable not found")

// Config holds launch options.
type Config struct {
	JobID      string
	Executable string
	// Env is added to the child environment.
	Env map[string]string
	// InheritEnv passes the parent environment through.
	InheritEnv bool
	Sink       events.Sink
	// Echo also receives the simulation output when attached.
	Echo io.Writer
	// Detach starts the simulation in its own session and returns at once.
	Detach bool
}

// Result holds the outcome of a launch.
type Result struct {
	LaunchID string        `json:"launch_id"`
	PID      int           `json:"pid"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Detached bool          `json:"detached"`
	// Paused is set when cancellation was turned into a PAUSE command.
	Paused bool `json:"paused,omitempty"`
}

// Run launches the simulation for the job behind ctl. Only RUNNABLE and
// PAUSED jobs can be run; a PAUSED job first gets a RESUME command so the
// simulation continues from where it stopped. Output is appended to
// run.log.
//
// Cancelling ctx does not kill an attached simulation: it writes a PAUSE
// command and keeps waiting for the process to stop on its own.
func Run(ctx context.Context, ctl *control.Controller, cfg Config) (res *Result, err error) {
	l := ctl.Layout()
	logger := logctx.From(ctx)
	defer func() { metrics.RecordLaunch(err) }()

	state, err := ctl.JobState(ctx)
	if err != nil {
		return nil, err
	}
	if !state.Runnable() {
		return nil, fmt.Errorf("%w: status is %s", control.ErrNotRunnable, state)
	}
	if info, statErr := os.Stat(cfg.Executable); statErr != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrExecutableMissing, cfg.Executable)
	}
	if state == job.StatePaused {
		if _, err := ctl.Resume(ctx); err != nil {
			return nil, err
		}
	}

	logFile, err := os.OpenFile(l.RunLog(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer logFile.Close()

	res = &Result{LaunchID: events.NewLaunchID(), Detached: cfg.Detach}
	cmd := exec.Command(cfg.Executable)
	cmd.Dir = l.Dir()
	cmd.Env = buildEnv(cfg.Env, cfg.InheritEnv, l.Dir())

	if cfg.Detach {
		cmd.Stdout, cmd.Stderr = logFile, logFile
		detach(cmd)
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start simulation: %w", err)
		}
		res.PID = cmd.Process.Pid
		emitLaunch(cfg, res)
		logger.Info("simulation started", "job_dir", l.Dir(), "pid", res.PID, "launch_id", res.LaunchID, "detached", true)
		return res, cmd.Process.Release()
	}

	out := io.Writer(logFile)
	if cfg.Echo != nil {
		out = io.MultiWriter(logFile, cfg.Echo)
	}
	stdout, stderr := events.OutputPair(cfg.Sink, cfg.JobID, res.LaunchID, out)
	cmd.Stdout, cmd.Stderr = stdout, stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start simulation: %w", err)
	}
	res.PID = cmd.Process.Pid
	emitLaunch(cfg, res)
	logger.Info("simulation started", "job_dir", l.Dir(), "pid", res.PID, "launch_id", res.LaunchID)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		res.Paused, waitErr = pauseOnCancel(context.WithoutCancel(ctx), ctl, done)
	}
	stdout.Flush()
	stderr.Flush()
	res.Duration = time.Since(start)

	res.ExitCode = 0
	if waitErr != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		waitErr = fmt.Errorf("simulation exited: %w", waitErr)
	}
	if cfg.Sink != nil {
		cfg.Sink.EmitExit(cfg.JobID, res.LaunchID, res.ExitCode, waitErr)
	}
	logger.Info("simulation exited", "job_dir", l.Dir(), "exit_code", res.ExitCode, "duration_ms", res.Duration.Milliseconds())
	return res, waitErr
}

// commandPoll is how often a pending RESUME is checked after cancellation.
const commandPoll = 20 * time.Millisecond

// pauseOnCancel asks the attached simulation to stop at its next poll and
// waits for it to exit. A RESUME the simulation has not read yet stays in
// place until it is consumed, so the job continues from its paused step
// before pausing again.
func pauseOnCancel(ctx context.Context, ctl *control.Controller, done <-chan error) (bool, error) {
	tick := time.NewTicker(commandPoll)
	defer tick.Stop()
	for {
		cmd, pending, err := ctl.ReadCommand()
		if err != nil || !pending || cmd.Kind != control.CommandResume {
			break
		}
		select {
		case waitErr := <-done:
			return false, waitErr
		case <-tick.C:
		}
	}
	if err := ctl.RequestPause(ctx); err != nil {
		logctx.From(ctx).Warn("pause on cancel failed", "job_dir", ctl.Layout().Dir(), "error", err)
		return false, <-done
	}
	return true, <-done
}

func emitLaunch(cfg Config, res *Result) {
	if cfg.Sink != nil {
		cfg.Sink.EmitLaunch(cfg.JobID, res.LaunchID, res.PID)
	}
}

func upsertEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// buildEnv assembles the child environment. Configured values win over
// inherited ones; PATH is always carried.
func buildEnv(extra map[string]string, inherit bool, jobDir string) []string {
	type entry struct {
		key string
		val string
	}
	ordered := make([]entry, 0)
	envSet := make(map[string]string)
	set := func(k, v string) {
		if _, exists := envSet[k]; !exists {
			ordered = append(ordered, entry{key: k, val: v})
		}
		envSet[k] = v
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, extra[k])
	}
	if _, ok := envSet["PATH"]; !ok {
		if path := os.Getenv("PATH"); path != "" {
			set("PATH", path)
		}
	}
	if inherit {
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			if _, exists := envSet[k]; exists {
				continue
			}
			set(k, v)
		}
	}
	env := make([]string, 0, len(ordered)+2)
	for _, e := range ordered {
		env = append(env, fmt.Sprintf("%s=%s", e.key, envSet[e.key]))
	}
	env = upsertEnv(env, "DATA_DIR", paths.DataDir())
	env = upsertEnv(env, "SIMCTL_JOB_DIR", jobDir)
	return env
}
