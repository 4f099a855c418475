// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/spf13/cobra"
)

func NewEditCmd(a *app) *cobra.Command {
	var (
		runLength int
		t100      bool
		modsFile  string
		noMods    bool
		restart   string
		strict    bool
		asJSON    bool
	)
	c := &cobra.Command{
		Use:   "edit <job>",
		Short: "Change a job's run length, time-stepping, overrides or restart and regenerate it",
		Long: `Change the recorded configuration of an existing job and regenerate its
namelists. A paused or complete job first has its current run segment
archived. Extending a complete job marks it paused so it can continue.`,
		Example: `  simctl edit spinup --runlen 10000
  simctl edit spinup --mods tweaks.txt
  simctl edit spinup --no-mods --t100=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			ed := engine.Edit{Strict: strict}
			if flags.Changed("runlen") {
				if runLength <= 0 {
					return &engine.ArgError{Arg: "--runlen", Msg: "must be a positive number of years"}
				}
				ed.RunLength = &runLength
			}
			if flags.Changed("t100") {
				ed.T100 = &t100
			}
			if flags.Changed("restart") {
				ed.Restart = &restart
			}
			switch {
			case noMods && modsFile != "":
				return &engine.ArgError{Arg: "--mods", Msg: "cannot be combined with --no-mods"}
			case noMods:
				empty := ""
				ed.Mods = &empty
			case modsFile != "":
				body, err := os.ReadFile(modsFile)
				if err != nil {
					return fmt.Errorf("read mods: %w", err)
				}
				mods := string(body)
				if strings.TrimSpace(mods) == "" {
					mods = ""
				}
				ed.Mods = &mods
			}
			if ed.RunLength == nil && ed.T100 == nil && ed.Restart == nil && ed.Mods == nil && !strict {
				return errors.New("nothing to change: pass --runlen, --t100, --mods, --no-mods, --restart or --strict")
			}

			eng, err := a.engine()
			if err != nil {
				return err
			}
			res, err := eng.Reconfigure(cmd.Context(), args[0], ed)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, res)
			}
			if res.Segment != nil {
				fmt.Fprintf(a.out, "archived segment %d (steps %d-%d)\n", res.Segment.Number, res.Segment.Start, res.Segment.End)
			}
			if res.Reopened {
				fmt.Fprintf(a.out, "marked %s as %s\n", args[0], job.StatePaused)
			}
			fmt.Fprintf(a.out, "[OK] reconfigured %s (%d namelists)\n", res.JobDir, len(res.Namelists))
			printUnknownKeys(a, res.UnknownKeys)
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
	c.Flags().IntVar(&runLength, "runlen", 0, "New run length in years")
	c.Flags().BoolVar(&t100, "t100", false, `Use "T100" time-stepping`)
	c.Flags().StringVar(&modsFile, "mods", "", "Replace the key=value overrides with the contents of this file")
	c.Flags().BoolVar(&noMods, "no-mods", false, "Remove the key=value overrides")
	c.Flags().StringVar(&restart, "restart", "", `Restart job or output directory ("" clears it)`)
	c.Flags().BoolVar(&strict, "strict", false, "Fail when a configuration key matches no namelist entry")
	c.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return c
}
