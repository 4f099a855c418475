// SPDX-License-Identifier: AGPL-3.0-or-later

package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
)

var (
	// ErrNotRunnable is returned when a command needs a state the job is not in.
	ErrNotRunnable = errors.New("job is not runnable")
	// ErrAlreadyPaused is returned by Pause on a paused job.
	ErrAlreadyPaused = errors.New("job is already paused")
	// ErrNoStatus is returned by Pause before the simulation has started.
	ErrNoStatus = errors.New("job has no status file")
)

// CommandKind names a control command.
type CommandKind string

const (
	CommandPause  CommandKind = "PAUSE"
	CommandResume CommandKind = "RESUME"
	// legacyResume is accepted when reading a command back.
	legacyResume = "GUI_RESTART"
)

// Command is a pending instruction for the simulation.
type Command struct {
	Kind  CommandKind `json:"kind" yaml:"kind"`
	Step  string      `json:"step,omitempty" yaml:"step,omitempty"`
	Clock string      `json:"clock,omitempty" yaml:"clock,omitempty"`
}

// String renders the command file line without its newline.
func (c Command) String() string {
	if c.Kind == CommandResume {
		return fmt.Sprintf("%s %s %s", c.Kind, c.Step, c.Clock)
	}
	return string(c.Kind)
}

// ParseCommand parses a command file line.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}
	switch fields[0] {
	case string(CommandPause):
		return Command{Kind: CommandPause}, nil
	case string(CommandResume), legacyResume:
		if len(fields) < 3 {
			return Command{}, fmt.Errorf("resume command needs step and clock: %q", line)
		}
		return Command{Kind: CommandResume, Step: fields[1], Clock: fields[2]}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

// ReadCommand returns the pending command. ok is false when the simulation
// has already consumed it.
func (c *Controller) ReadCommand() (cmd Command, ok bool, err error) {
	line, err := readFirstLine(c.layout.Command())
	if errors.Is(err, os.ErrNotExist) {
		return Command{}, false, nil
	}
	if err != nil {
		return Command{}, false, err
	}
	cmd, err = ParseCommand(line)
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}

func (c *Controller) writeCommand(ctx context.Context, cmd Command) error {
	if err := os.WriteFile(c.layout.Command(), []byte(cmd.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	logctx.From(ctx).Info("command written", "job_dir", c.layout.Dir(), "command", cmd.Kind)
	c.observeCommand(cmd.Kind)
	return nil
}

// Pause asks a running simulation to stop after its current step. It does
// not wait for the simulation to act on it.
func (c *Controller) Pause(ctx context.Context) error {
	if !exists(c.layout.Status()) {
		return ErrNoStatus
	}
	st, err := c.ReadStatus(ctx)
	if err == nil && st.State == job.StatePaused {
		return ErrAlreadyPaused
	}
	return c.RequestPause(ctx)
}

// RequestPause writes PAUSE without looking at the status file. It is for
// callers that own the attached simulation, whose status may not exist yet
// or may still read PAUSED right after a resume.
func (c *Controller) RequestPause(ctx context.Context) error {
	return c.writeCommand(ctx, Command{Kind: CommandPause})
}

// Resume replaces any stale command with RESUME <step> <clock> taken from
// the PAUSED status line.
func (c *Controller) Resume(ctx context.Context) (Command, error) {
	st, err := c.ReadStatus(ctx)
	if err != nil {
		return Command{}, err
	}
	if st.State != job.StatePaused {
		return Command{}, fmt.Errorf("%w: status is %s", ErrNotRunnable, st.State)
	}
	if len(st.Tokens) < 4 {
		return Command{}, fmt.Errorf("paused status %q lacks step and clock", st.String())
	}
	if err := os.Remove(c.layout.Command()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Command{}, fmt.Errorf("remove stale command: %w", err)
	}
	cmd := Command{Kind: CommandResume, Step: st.Tokens[1], Clock: st.Tokens[3]}
	return cmd, c.writeCommand(ctx, cmd)
}
