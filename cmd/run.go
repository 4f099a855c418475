// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"io"

	"github.com/flowd-org/simctl/internal/configloader"
	"github.com/flowd-org/simctl/internal/executor"
	"github.com/spf13/cobra"
)

func NewRunCmd(a *app) *cobra.Command {
	var (
		detach     bool
		quiet      bool
		executable string
	)
	c := &cobra.Command{
		Use:   "run <job>",
		Short: "Launch the simulation for a runnable or paused job",
		Long: `Launch the simulation in the job directory with its output appended to
run.log. A paused job gets a RESUME command first. Interrupting an attached
run asks the simulation to pause rather than killing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			exe := executable
			if exe == "" {
				exe = configloader.ExecutablePath(a.settings)
			}
			var echo io.Writer
			if !quiet {
				echo = a.out
			}
			res, err := executor.Run(cmd.Context(), eng.Controller(args[0]), executor.Config{
				JobID:      args[0],
				Executable: exe,
				Env:        a.settings.Env,
				InheritEnv: true,
				Sink:       a.sink,
				Echo:       echo,
				Detach:     detach,
			})
			if res == nil {
				return err
			}
			if res.Detached {
				fmt.Fprintf(a.out, "[OK] %s started in the background (pid %d, launch %s)\n", args[0], res.PID, res.LaunchID)
				return err
			}
			if res.Paused {
				fmt.Fprintf(a.err, "pause requested for %s after interrupt\n", args[0])
			}
			if res.ExitCode != 0 {
				code := res.ExitCode
				if code < 0 {
					code = 1
				}
				return &exitError{code: code}
			}
			fmt.Fprintf(a.out, "[OK] %s finished in %s\n", args[0], res.Duration.Round(1e6))
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
	c.Flags().BoolVarP(&detach, "detach", "d", false, "Start the simulation in the background and return")
	c.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not echo simulation output")
	c.Flags().StringVar(&executable, "executable", "", "Simulation executable (default from settings)")
	return c
}
