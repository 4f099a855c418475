// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flowd-org/simctl/internal/control"
	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/spf13/cobra"
)

// jobStatus is what status and jobs report for one job.
type jobStatus struct {
	ID        string          `json:"id"`
	Dir       string          `json:"dir"`
	State     job.State       `json:"state"`
	Status    *control.Status `json:"status,omitempty"`
	Percent   *float64        `json:"percent,omitempty"`
	Kind      string          `json:"config_kind,omitempty"`
	RunLength int             `json:"run_length,omitempty"`
	T100      bool            `json:"t100,omitempty"`
	Segments  []string        `json:"segments,omitempty"`
}

func describeJob(ctx context.Context, eng *engine.Engine, jobsRoot, id string) (jobStatus, error) {
	ctl := eng.Controller(id)
	state, err := ctl.JobState(ctx)
	if err != nil {
		return jobStatus{}, err
	}
	js := jobStatus{ID: id, Dir: ctl.Layout().Dir(), State: state}
	if state != job.StateUnconfigured && state != job.StateRunnable {
		if st, err := ctl.ReadStatus(ctx); err == nil {
			js.Status = &st
			if pct, ok := st.PercentDone(); ok {
				js.Percent = &pct
			}
		}
	}
	j, err := job.Load(jobsRoot, js.Dir)
	if err != nil {
		return jobStatus{}, err
	}
	if j.Config.ConfigDate != "" {
		js.Kind = j.Config.Kind()
		js.RunLength = j.Config.RunLength
		js.T100 = j.Config.T100
	}
	js.Segments = j.SegmentStrings()
	return js, nil
}

func formatPercent(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *p)
}

func NewStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "status <job>",
		Short: "Show a job's state, progress and run segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			js, err := describeJob(cmd.Context(), eng, a.settings.Jobs, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, js)
			}
			fmt.Fprintf(a.out, "Job:      %s\n", js.ID)
			fmt.Fprintf(a.out, "Dir:      %s\n", js.Dir)
			fmt.Fprintf(a.out, "State:    %s\n", js.State)
			if js.Status != nil {
				fmt.Fprintf(a.out, "Status:   %s\n", js.Status)
			}
			if js.Percent != nil {
				fmt.Fprintf(a.out, "Progress: %s\n", formatPercent(js.Percent))
			}
			if js.Kind != "" {
				t100 := ""
				if js.T100 {
					t100 = ", T100"
				}
				runLength := "?"
				if js.RunLength > 0 {
					runLength = fmt.Sprint(js.RunLength)
				}
				fmt.Fprintf(a.out, "Config:   %s, run length %s%s\n", js.Kind, runLength, t100)
			}
			fmt.Fprintf(a.out, "Segments: %s\n", strings.Join(js.Segments, "  "))
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
	c.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return c
}

func NewPauseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <job>",
		Short: "Ask a running simulation to pause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			err = eng.Controller(args[0]).Pause(cmd.Context())
			switch {
			case errors.Is(err, control.ErrAlreadyPaused):
				fmt.Fprintf(a.out, "%s is already paused\n", args[0])
				return nil
			case errors.Is(err, control.ErrNoStatus):
				return fmt.Errorf("%s has not started: %w", args[0], err)
			case err != nil:
				return err
			}
			fmt.Fprintf(a.out, "[OK] pause requested for %s\n", args[0])
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
}

func NewResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job>",
		Short: "Write the RESUME command for a paused job",
		Long: `Write the RESUME command for a paused job. The simulation reads it on its
next start, so follow with "simctl run" unless something else launches it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			c, err := eng.Controller(args[0]).Resume(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "[OK] %s: %s\n", args[0], c)
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
}
