// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/watch"
	"github.com/spf13/cobra"
)

func NewWatchCmd(a *app) *cobra.Command {
	var (
		poll    time.Duration
		jsonOut bool
	)
	c := &cobra.Command{
		Use:   "watch <job>",
		Short: "Follow a job's status until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			var encErr error
			state, err := watch.Follow(cmd.Context(), eng.Controller(args[0]),
				watch.Options{Poll: poll, Sink: a.sink, JobID: args[0]},
				func(u watch.Update) {
					if jsonOut {
						if encErr == nil {
							encErr = enc.Encode(u)
						}
						return
					}
					line := fmt.Sprintf("%s  %-12s", u.At.Format(time.TimeOnly), u.State)
					if u.State.HasProgress() {
						line += fmt.Sprintf(" %d/%d (%.1f%%)", u.Status.CurrentStep, u.Status.TotalSteps, u.Percent)
					}
					fmt.Fprintln(a.out, line)
				})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return err
			}
			if encErr != nil {
				return encErr
			}
			if state == job.StateError {
				return fmt.Errorf("%s stopped with status %s", args[0], state)
			}
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
	c.Flags().DurationVar(&poll, "poll", watch.DefaultPoll, "Re-read the status at least this often")
	c.Flags().BoolVar(&jsonOut, "json", false, "Print one JSON object per update")
	return c
}
