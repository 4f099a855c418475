// SPDX-License-Identifier: AGPL-3.0-or-later

package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/retry"
)

// ErrStatusUnreadable is reported when the status file could not be read
// within the retry budget. Status never returns it; the job shows as ERROR.
var ErrStatusUnreadable = errors.New("status file unreadable")

// Status is the parsed first line of the status file:
// <STATE> <currentStep> <totalSteps> <clock> ...
type Status struct {
	State       job.State `json:"state" yaml:"state"`
	CurrentStep int       `json:"current_step" yaml:"current_step"`
	TotalSteps  int       `json:"total_steps" yaml:"total_steps"`
	Clock       string    `json:"clock,omitempty" yaml:"clock,omitempty"`
	// Tokens holds the raw fields, state first.
	Tokens []string `json:"tokens" yaml:"tokens"`
}

// ParseStatus parses a status line. Missing or non-numeric counters are left
// at zero.
func ParseStatus(line string) (Status, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Status{}, fmt.Errorf("empty status line: %w", ErrStatusUnreadable)
	}
	st := Status{State: job.State(fields[0]), Tokens: fields}
	if len(fields) > 1 {
		st.CurrentStep, _ = strconv.Atoi(fields[1])
	}
	if len(fields) > 2 {
		st.TotalSteps, _ = strconv.Atoi(fields[2])
	}
	if len(fields) > 3 {
		st.Clock = fields[3]
	}
	return st, nil
}

// String renders the status line.
func (s Status) String() string {
	return strings.Join(s.Tokens, " ")
}

// PercentDone returns 100*current/total for RUNNING and PAUSED jobs.
func (s Status) PercentDone() (float64, bool) {
	if !s.State.HasProgress() || len(s.Tokens) < 3 {
		return 0, false
	}
	cur, err1 := strconv.ParseFloat(s.Tokens[1], 64)
	total, err2 := strconv.ParseFloat(s.Tokens[2], 64)
	if err1 != nil || err2 != nil || total == 0 {
		return 0, false
	}
	return 100 * cur / total, true
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadStatus reads the status file, retrying while it is missing, locked or
// empty. Exhausting the policy yields ErrStatusUnreadable.
func (c *Controller) ReadStatus(ctx context.Context) (Status, error) {
	path := c.layout.Status()
	st, attempts, err := retry.Do(ctx, c.policy, func() (Status, error) {
		line, err := readFirstLine(path)
		if err != nil {
			return Status{}, err
		}
		return ParseStatus(line)
	})
	if err != nil {
		logctx.From(ctx).Warn("status read failed", "path", path, "attempts", attempts, "error", err)
		c.observeStatusRead(false, attempts)
		return Status{}, fmt.Errorf("%s after %d attempts: %w", path, attempts, errors.Join(ErrStatusUnreadable, err))
	}
	c.observeStatusRead(true, attempts)
	return st, nil
}

// JobState infers the lifecycle state from the job directory:
// UNCONFIGURED before namelists exist, RUNNABLE before the simulation has
// written a status file, then the status file's first token, or ERROR if it
// cannot be read. A missing directory is job.ErrNotFound.
func (c *Controller) JobState(ctx context.Context) (job.State, error) {
	if _, err := os.Stat(c.layout.Dir()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", c.layout.Dir(), job.ErrNotFound)
		}
		return "", err
	}
	if !exists(c.layout.Sentinel()) {
		return job.StateUnconfigured, nil
	}
	if !exists(c.layout.Status()) {
		return job.StateRunnable, nil
	}
	st, err := c.ReadStatus(ctx)
	if err != nil {
		return job.StateError, nil
	}
	return st.State, nil
}

// MarkPausedOnExtend rewrites a COMPLETE status as PAUSED so that a job
// whose run length was increased can continue. It reports whether the file
// was rewritten.
func (c *Controller) MarkPausedOnExtend(ctx context.Context) (bool, error) {
	if !exists(c.layout.Status()) {
		return false, nil
	}
	st, err := c.ReadStatus(ctx)
	if err != nil || st.State != job.StateComplete {
		return false, nil
	}
	tokens := append([]string{string(job.StatePaused)}, st.Tokens[1:]...)
	if err := os.WriteFile(c.layout.Status(), []byte(strings.Join(tokens, " ")+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("rewrite status: %w", err)
	}
	logctx.From(ctx).Info("completed job reopened", "job_dir", c.layout.Dir())
	return true, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
