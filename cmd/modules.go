// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/flowd-org/simctl/internal/modules"
	"github.com/spf13/cobra"
)

func NewModulesCmd(a *app) *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   "modules",
		Short: "List the model's modules, flags and namelist files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}
			descs := reg.Modules()
			if jsonOut {
				return writeJSON(a.out, descs)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODULE\tFLAG\tPREFIX\tNAMELIST FILE\tNAMELIST")
			for _, d := range descs {
				flag := d.Flag
				if flag == modules.NoFlag {
					flag = "(always)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, flag, d.Prefix, d.NamelistFile, d.NamelistName)
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output modules as JSON")
	return c
}
