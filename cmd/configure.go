// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/namelist"
	"github.com/spf13/cobra"
)

func jobAndRunLength(args []string) (string, int, error) {
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return "", 0, &engine.ArgError{Arg: "run length", Msg: fmt.Sprintf("must be a positive number of years, got %q", args[1])}
	}
	return args[0], n, nil
}

func NewConfigureCmd(a *app) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "configure <job> <run-length>",
		Short: "Create a job directory from configuration fragments",
		Long: `Create a job directory from a base and user configuration pair, or from a
single full configuration, and generate every namelist the model reads.`,
		Example: `  simctl configure spinup 5000 -b cgenie.eb_go_gs_ac_bg.p0650c.BASE -u LAB_0.snowball
  simctl configure control 100 -c cgenie.eb_go_gs_ac_bg.p0650c.FULL -r spinup`,
		Args: cobra.ExactArgs(2),
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
			res, err := eng.Configure(cmd.Context(), req)
			if err != nil {
				var uk *namelist.UnknownKeysError
				if errors.As(err, &uk) {
					fmt.Fprintln(a.err, "unknown configuration keys (strict mode):")
				}
				return err
			}
			if asJSON {
				return writeJSON(a.out, res)
			}
			fmt.Fprintf(a.out, "[OK] configured %s\n", res.JobDir)
			fmt.Fprintf(a.out, "  modules:    %s\n", strings.Join(res.Modules, ", "))
			fmt.Fprintf(a.out, "  namelists:  %d\n", len(res.Namelists))
			fmt.Fprintf(a.out, "  data files: %d copied, %d unresolved\n", res.DataFiles, res.Unresolved)
			if res.RestartFiles > 0 {
				fmt.Fprintf(a.out, "  restart:    %d files\n", res.RestartFiles)
			}
			printUnknownKeys(a, res.UnknownKeys)
			return nil
		},
	}
	engine.RegisterFlags(c.Flags())
	c.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return c
}

func printUnknownKeys(a *app, unknown map[string][]string) {
	if len(unknown) == 0 {
		return
	}
	mods := make([]string, 0, len(unknown))
	for m := range unknown {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	fmt.Fprintln(a.err, "[warn] keys with no matching namelist entry:")
	for _, m := range mods {
		fmt.Fprintf(a.err, "  %s: %s\n", m, strings.Join(unknown[m], ", "))
	}
}
