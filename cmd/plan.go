// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/flowd-org/simctl/internal/engine"
	"github.com/spf13/cobra"
)

func NewPlanCmd(a *app) *cobra.Command {
	var format string
	c := &cobra.Command{
		Use:   "plan <job> <run-length>",
		Short: "Preview the modules, layers and namelists of a job (no writes)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, runLength, err := jobAndRunLength(args)
			if err != nil {
				return err
			}
			req, err := engine.BindFlags(cmd.Flags(), name, runLength)
			if err != nil {
				return err
			}
			eng, err := a.engine()
			if err != nil {
				return err
			}
			plan, err := eng.BuildPlan(cmd.Context(), req)
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case "json":
				return writeJSON(a.out, plan)
			case "yaml":
				return writeYAML(a.out, plan)
			case "", "text":
			default:
				return fmt.Errorf("unknown format %q (text|json|yaml)", format)
			}

			fmt.Fprintf(a.out, "Job: %s (%s)\n", plan.JobID, plan.JobDir)
			fmt.Fprintf(a.out, "Config: %s, run length %d", plan.ConfigKind, plan.RunLength)
			if plan.T100 {
				fmt.Fprint(a.out, ", T100")
			}
			if plan.Restart != "" {
				fmt.Fprintf(a.out, ", restart from %s", plan.Restart)
			}
			fmt.Fprintln(a.out)
			fmt.Fprintf(a.out, "Modules: %s\n", strings.Join(plan.Modules, ", "))
			if plan.Stepping != nil {
				fmt.Fprintf(a.out, "Stepping: %d steps/year, bio ratio %d, timestep %s\n",
					plan.Stepping.Steps, plan.Stepping.BioRatio, plan.Stepping.Timestep)
			}
			fmt.Fprintln(a.out, "Layers:")
			for i, l := range plan.Layers {
				fmt.Fprintf(a.out, "  %d. %s (%d keys)\n", i+1, l.Source, l.Keys)
			}
			fmt.Fprintln(a.out, "Namelists:")
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "  MODULE\tPREFIX\tOUTPUT\tTEMPLATE")
			for _, n := range plan.Namelists {
				tmpl := n.Template
				if n.Missing {
					tmpl += " (missing)"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", n.Module, n.Prefix, n.Output, tmpl)
			}
			return tw.Flush()
		},
	}
	engine.RegisterFlags(c.Flags())
	c.Flags().StringVarP(&format, "output", "o", "text", "Output format (text|json|yaml)")
	return c
}
